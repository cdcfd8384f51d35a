// Package provider declares the pluggable policy interfaces the server core
// consumes. Implementations own persistence; the server owns all in-memory
// session state.
package provider

import (
	"errors"

	"github.com/ermau/gablarski/internal/protocol"
)

var (
	ErrUnknown            = errors.New("an unexpected error occurred, please contact your server administrator")
	ErrInvalidCredentials = errors.New("username/password combination not found")
	ErrAccountBanned      = errors.New("this account has been suspended")
)

// LoginResult carries the identity issued by a successful login attempt.
type LoginResult struct {
	UserID int
	State  protocol.LoginResultState
}

// Succeeded reports whether the login attempt was accepted.
func (r LoginResult) Succeeded() bool {
	return r.State == protocol.LoginSucceeded
}

// UserProvider authenticates users and stores registrations and bans.
type UserProvider interface {
	// Login authenticates a registered account. A non-nil error indicates an
	// infrastructure failure, not bad credentials; credential failures are
	// reported through the result state.
	Login(username, password string) (LoginResult, error)

	// GuestLogin issues an ephemeral identity for a user joining without an
	// account. Implementations must never reuse a live guest id.
	GuestLogin(nickname string) (LoginResult, error)

	// Register creates a new account.
	Register(username, password string) (protocol.RegisterResultState, error)

	// RegistrationMode reports how registration requests should be treated.
	RegistrationMode() protocol.RegistrationMode

	// UpdateSupported reports whether the provider accepts mutations
	// (registration, bans). Read-only providers return false.
	UpdateSupported() bool

	AddBan(ban protocol.BanInfo) error
	RemoveBan(ban protocol.BanInfo) error
	Bans() ([]protocol.BanInfo, error)
}

// PermissionsProvider resolves per-user permission sets. The server owns the
// change callback registration and clears it on shutdown.
type PermissionsProvider interface {
	// GetPermissions returns the permission entries for a user. Ids <= 0
	// resolve to the unauthenticated/guest default set.
	GetPermissions(userID int) ([]protocol.Permission, error)

	SetPermissions(userID int, permissions []protocol.Permission) error

	// SetChangeCallback registers the single callback invoked (with the
	// affected user id) whenever a permission set changes. Passing nil
	// unregisters it.
	SetChangeCallback(cb func(userID int))
}

// ChannelProvider owns the channel catalog. The server owns the change
// callback registration and clears it on shutdown.
type ChannelProvider interface {
	GetChannels() ([]protocol.ChannelInfo, error)

	// DefaultChannel is the fallback channel for newly joined and orphaned
	// users. Providers must always have one.
	DefaultChannel() (protocol.ChannelInfo, error)

	// SaveChannel creates (ChannelID == 0) or updates a channel, returning
	// the saved channel with its assigned id. The state is meaningful only
	// when the error is nil.
	SaveChannel(channel protocol.ChannelInfo) (protocol.ChannelInfo, protocol.ChannelEditResultState, error)

	DeleteChannel(channelID int) (protocol.ChannelEditResultState, error)

	// UpdateSupported reports whether channels may be edited at all.
	UpdateSupported() bool

	// SetChangeCallback registers the single callback invoked after the
	// channel catalog changes. Passing nil unregisters it.
	SetChangeCallback(cb func())
}
