package protocol

import "time"

// UserStatus is a set of bit flags describing a joined user's state.
type UserStatus uint8

const (
	StatusNormal          UserStatus = 0
	StatusAFK             UserStatus = 1 << 0
	StatusMutedSound      UserStatus = 1 << 1
	StatusMutedMicrophone UserStatus = 1 << 2
)

// UserInfo is an immutable snapshot of a joined user. Mutations replace the
// whole value rather than editing it in place, so a snapshot handed to a
// handler can never change underneath it.
type UserInfo struct {
	// Unique id for the user. Guests are issued negative ephemeral ids by the
	// user provider; 0 is the sentinel used for unauthenticated permission
	// lookups and never identifies a joined user.
	UserID int
	// Account name. Empty for guests.
	Username string
	// Display name, unique (case-insensitively) among joined users.
	Nickname string
	// Phonetic spelling of the nickname for text-to-speech clients.
	Phonetic string
	// Channel the user currently occupies.
	CurrentChannelID int
	// Whether the user has been muted by the server.
	IsMuted bool
	Status  UserStatus
	Comment string
}

// BanInfo describes a ban on a username, an IP address, or both.
type BanInfo struct {
	Username  string
	IPAddress string
	Created   time.Time
	// Zero means the ban is permanent.
	Duration time.Duration
}

// Expired reports whether a timed ban has lapsed.
func (b BanInfo) Expired() bool {
	if b.Duration == 0 {
		return false
	}
	return time.Now().After(b.Created.Add(b.Duration))
}

// LoginResultState describes the outcome of an authentication attempt.
type LoginResultState int

const (
	LoginSucceeded LoginResultState = iota
	LoginFailedUnknown
	LoginFailedUsername
	LoginFailedPassword
	LoginFailedBanned
)

// JoinResultState describes the outcome of a join attempt.
type JoinResultState int

const (
	JoinSucceeded JoinResultState = iota
	JoinFailedUnknown
	JoinFailedUsername
	JoinFailedServerPassword
	JoinFailedNickname
	JoinFailedNicknameInUse
)

// RegisterResultState describes the outcome of a registration attempt.
type RegisterResultState int

const (
	RegisterSucceeded RegisterResultState = iota
	RegisterFailedUnknown
	RegisterFailedUsername
	RegisterFailedPassword
	RegisterFailedUsernameInUse
	RegisterFailedNotApproved
	RegisterFailedUnsupported
)

// RegistrationMode controls how (and whether) new accounts may be registered.
type RegistrationMode int

const (
	// RegistrationNone disables registration entirely.
	RegistrationNone RegistrationMode = iota
	// RegistrationNormal delegates registration directly to the user provider.
	RegistrationNormal
	// RegistrationApproved is equivalent to RegistrationNormal on the wire but
	// signals to clients that accounts are reviewed after the fact.
	RegistrationApproved
	// RegistrationPreApproved requires a one-shot approval, consumed when the
	// approved user registers.
	RegistrationPreApproved
)

// RejectedReason explains why a connection attempt was refused.
type RejectedReason int

const (
	RejectedUnknown RejectedReason = iota
	RejectedIncompatibleVersion
	RejectedBanned
	RejectedServerFull
)

// ChannelChangeState describes the outcome of a channel change request.
type ChannelChangeState int

const (
	ChannelChangeSucceeded ChannelChangeState = iota
	ChannelChangeFailedUnknown
	ChannelChangeFailedPermissions
	ChannelChangeFailedUnknownChannel
	ChannelChangeFailedFull
)

// Connect is the first message a client sends on a new connection.
type Connect struct {
	Version int
}

func (Connect) MessageType() MessageType { return ConnectType }

// Login authenticates a registered account. It does not place the user in a
// channel; a Join must follow for the user to become visible.
type Login struct {
	Username string
	Password string
}

func (Login) MessageType() MessageType { return LoginType }

// Join places the (possibly guest) identity into the channel and user lists.
type Join struct {
	Nickname       string
	Phonetic       string
	ServerPassword string
}

func (Join) MessageType() MessageType { return JoinType }

// RequestUserList asks for a snapshot of all joined users.
type RequestUserList struct{}

func (RequestUserList) MessageType() MessageType { return RequestUserListType }

// ChannelChange requests moving a user to another channel. A TargetUserID of
// 0 means the requester is moving themselves.
type ChannelChange struct {
	TargetUserID int
	ChannelID    int
}

func (ChannelChange) MessageType() MessageType { return ChannelChangeType }

// KickUser kicks a user from their channel, or from the server entirely.
type KickUser struct {
	UserID     int
	FromServer bool
}

func (KickUser) MessageType() MessageType { return KickUserType }

// BanUser adds a persistent ban. There is no reply; the ban itself is the
// record of the action.
type BanUser struct {
	Ban     BanInfo
	Removal bool
}

func (BanUser) MessageType() MessageType { return BanUserType }

// RequestMuteUser toggles the server mute flag on a user.
type RequestMuteUser struct {
	UserID int
}

func (RequestMuteUser) MessageType() MessageType { return RequestMuteUserType }

// SetStatus updates the requester's own status flags.
type SetStatus struct {
	Status UserStatus
}

func (SetStatus) MessageType() MessageType { return SetStatusType }

// SetComment updates the requester's own comment.
type SetComment struct {
	Comment string
}

func (SetComment) MessageType() MessageType { return SetCommentType }

// Register creates a new account, subject to the server's registration mode.
type Register struct {
	Username string
	Password string
}

func (Register) MessageType() MessageType { return RegisterType }

// RegistrationApproval pre-approves a username for one registration.
type RegistrationApproval struct {
	Username string
}

func (RegistrationApproval) MessageType() MessageType { return RegistrationApprovalType }

// ServerInfo describes the server to connecting and querying clients.
type ServerInfo struct {
	Name             string
	Description      string
	WelcomeMessage   string
	ProtocolVersion  int
	GuestsAllowed    bool
	PasswordRequired bool
}

// ServerInfoMessage is the accept reply to a Connect.
type ServerInfoMessage struct {
	Info ServerInfo
}

func (ServerInfoMessage) MessageType() MessageType { return ServerInfoType }

// ConnectionRejected refuses a Connect. The connection is closed afterwards.
type ConnectionRejected struct {
	Reason RejectedReason
}

func (ConnectionRejected) MessageType() MessageType { return ConnectionRejectedType }

// Redirect tells a connecting client to reconnect elsewhere.
type Redirect struct {
	Host string
	Port int
}

func (Redirect) MessageType() MessageType { return RedirectType }

// LoginResultMessage reports the outcome of a Login to the requester.
type LoginResultMessage struct {
	UserID int
	State  LoginResultState
}

func (LoginResultMessage) MessageType() MessageType { return LoginResultType }

// JoinResultMessage reports the outcome of a Join to the requester.
type JoinResultMessage struct {
	State JoinResultState
	User  UserInfo
}

func (JoinResultMessage) MessageType() MessageType { return JoinResultType }

// PermissionsMessage delivers a user's effective permission set.
type PermissionsMessage struct {
	UserID      int
	Permissions []Permission
}

func (PermissionsMessage) MessageType() MessageType { return PermissionsType }

// PermissionDenied rejects a permission-gated request without changing state.
type PermissionDenied struct {
	DeniedMessage MessageType
}

func (PermissionDenied) MessageType() MessageType { return PermissionDeniedType }

// UserListMessage is a snapshot of all joined users.
type UserListMessage struct {
	Users []UserInfo
}

func (UserListMessage) MessageType() MessageType { return UserListType }

// UserJoined announces a newly joined user to everyone else.
type UserJoined struct {
	User UserInfo
}

func (UserJoined) MessageType() MessageType { return UserJoinedType }

// UserDisconnected announces that a joined user left the server.
type UserDisconnected struct {
	UserID int
}

func (UserDisconnected) MessageType() MessageType { return UserDisconnectedType }

// UserKicked announces a kick. It is broadcast before the kick is acted on so
// receivers observe the cause before the resulting move or disconnect.
type UserKicked struct {
	UserID     int
	KickerID   int
	FromServer bool
}

func (UserKicked) MessageType() MessageType { return UserKickedType }

// UserMuted announces a user's new mute state.
type UserMuted struct {
	UserID  int
	IsMuted bool
}

func (UserMuted) MessageType() MessageType { return UserMutedType }

// UserUpdated announces a status or comment change.
type UserUpdated struct {
	User UserInfo
}

func (UserUpdated) MessageType() MessageType { return UserUpdatedType }

// ChannelChangeResultMessage reports a failed or successful move to the
// requester only. Successful moves are additionally announced to everyone
// via UserChangedChannel.
type ChannelChangeResultMessage struct {
	State        ChannelChangeState
	TargetUserID int
	ChannelID    int
}

func (ChannelChangeResultMessage) MessageType() MessageType { return ChannelChangeResultType }

// UserChangedChannel announces a completed channel move.
type UserChangedChannel struct {
	UserID            int
	ChannelID         int
	PreviousChannelID int
	RequesterID       int
}

func (UserChangedChannel) MessageType() MessageType { return UserChangedChannelType }

// RegisterResultMessage reports the outcome of a Register to the requester.
type RegisterResultMessage struct {
	State RegisterResultState
}

func (RegisterResultMessage) MessageType() MessageType { return RegisterResultType }
