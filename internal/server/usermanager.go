package server

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/ermau/gablarski/internal/protocol"
)

var nicknameFolder = cases.Fold()

// foldNickname normalizes a nickname for uniqueness comparison.
func foldNickname(nickname string) string {
	return nicknameFolder.String(strings.TrimSpace(nickname))
}

// session tracks one connection's progression through the protocol state
// machine. The joined UserInfo is treated as immutable: mutations build a
// replacement snapshot and swap it in under the manager lock.
type session struct {
	conn Connection

	// Identity established by Login. Guests have no identity until Join.
	userID   int
	username string
	loggedIn bool

	joined bool
	user   protocol.UserInfo
}

// UserManager owns the connection/identity mapping and all per-session
// state. The dispatch loop serializes mutations; the lock exists so
// read-side helpers (query snapshots) stay safe regardless of caller.
type UserManager struct {
	mu sync.RWMutex

	// sessions is the single authoritative map; byUserID is the reverse
	// index for identity lookups and is kept in lockstep with it.
	sessions map[Connection]*session
	byUserID map[int]Connection
}

func NewUserManager() *UserManager {
	return &UserManager{
		sessions: make(map[Connection]*session),
		byUserID: make(map[int]Connection),
	}
}

// Connect registers a connection. It reports false if the connection was
// already registered.
func (m *UserManager) Connect(conn Connection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[conn]; ok {
		return false
	}
	m.sessions[conn] = &session{conn: conn}
	return true
}

func (m *UserManager) IsConnected(conn Connection) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sessions[conn]
	return ok
}

// Login records an authenticated identity for a connection. The caller must
// have disconnected any stale session holding the same identity first.
func (m *UserManager) Login(conn Connection, userID int, username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[conn]
	if !ok {
		return false
	}

	sess.userID = userID
	sess.username = username
	sess.loggedIn = true
	m.byUserID[userID] = conn
	return true
}

func (m *UserManager) IsLoggedIn(conn Connection) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[conn]
	return ok && sess.loggedIn
}

// Identity returns the logged-in identity for a connection.
func (m *UserManager) Identity(conn Connection) (userID int, username string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, found := m.sessions[conn]
	if !found || !sess.loggedIn {
		return 0, "", false
	}
	return sess.userID, sess.username, true
}

// Join places a user snapshot for a connection. It is a no-op unless the
// connection is connected and not already joined.
func (m *UserManager) Join(conn Connection, user protocol.UserInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[conn]
	if !ok || sess.joined {
		return false
	}

	sess.joined = true
	sess.userID = user.UserID
	sess.username = user.Username
	sess.user = user
	m.byUserID[user.UserID] = conn
	return true
}

func (m *UserManager) IsJoined(conn Connection) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[conn]
	return ok && sess.joined
}

// User returns the joined snapshot for a connection.
func (m *UserManager) User(conn Connection) (protocol.UserInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[conn]
	if !ok || !sess.joined {
		return protocol.UserInfo{}, false
	}
	return sess.user, true
}

// UserByID returns the joined snapshot for a user id.
func (m *UserManager) UserByID(userID int) (protocol.UserInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userByIDLocked(userID)
}

func (m *UserManager) userByIDLocked(userID int) (protocol.UserInfo, bool) {
	conn, ok := m.byUserID[userID]
	if !ok {
		return protocol.UserInfo{}, false
	}
	sess := m.sessions[conn]
	if sess == nil || !sess.joined {
		return protocol.UserInfo{}, false
	}
	return sess.user, true
}

// ConnectionFor returns the connection currently holding a user id.
func (m *UserManager) ConnectionFor(userID int) (Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.byUserID[userID]
	return conn, ok
}

// FindNickname returns the joined user holding a nickname, compared
// case-insensitively on the trimmed name.
func (m *UserManager) FindNickname(nickname string) (protocol.UserInfo, bool) {
	folded := foldNickname(nickname)

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sess := range m.sessions {
		if sess.joined && foldNickname(sess.user.Nickname) == folded {
			return sess.user, true
		}
	}
	return protocol.UserInfo{}, false
}

// Users returns a snapshot of every joined user.
func (m *UserManager) Users() []protocol.UserInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]protocol.UserInfo, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess.joined {
			users = append(users, sess.user)
		}
	}
	return users
}

// Connections returns every registered connection.
func (m *UserManager) Connections() []Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]Connection, 0, len(m.sessions))
	for conn := range m.sessions {
		conns = append(conns, conn)
	}
	return conns
}

// ConnectionCount returns the number of registered connections.
func (m *UserManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ChannelOccupancy counts the joined users currently in a channel.
func (m *UserManager) ChannelOccupancy(channelID int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, sess := range m.sessions {
		if sess.joined && sess.user.CurrentChannelID == channelID {
			count++
		}
	}
	return count
}

// Move replaces the user's snapshot with one placed in the given channel.
func (m *UserManager) Move(userID, channelID int) (protocol.UserInfo, bool) {
	return m.replace(userID, func(user protocol.UserInfo) protocol.UserInfo {
		user.CurrentChannelID = channelID
		return user
	})
}

// SetStatus replaces the user's snapshot with one carrying the new status.
func (m *UserManager) SetStatus(userID int, status protocol.UserStatus) (protocol.UserInfo, bool) {
	return m.replace(userID, func(user protocol.UserInfo) protocol.UserInfo {
		user.Status = status
		return user
	})
}

// SetComment replaces the user's snapshot with one carrying the new comment.
func (m *UserManager) SetComment(userID int, comment string) (protocol.UserInfo, bool) {
	return m.replace(userID, func(user protocol.UserInfo) protocol.UserInfo {
		user.Comment = comment
		return user
	})
}

// ToggleMute flips the user's server mute flag.
func (m *UserManager) ToggleMute(userID int) (protocol.UserInfo, bool) {
	return m.replace(userID, func(user protocol.UserInfo) protocol.UserInfo {
		user.IsMuted = !user.IsMuted
		return user
	})
}

// replace is the copy-on-write mutation path: fetch the current snapshot,
// derive the next one, and swap it in while still holding the lock.
func (m *UserManager) replace(userID int, mutate func(protocol.UserInfo) protocol.UserInfo) (protocol.UserInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.byUserID[userID]
	if !ok {
		return protocol.UserInfo{}, false
	}
	sess := m.sessions[conn]
	if sess == nil || !sess.joined {
		return protocol.UserInfo{}, false
	}

	sess.user = mutate(sess.user)
	return sess.user, true
}

// Disconnect removes all session state for a connection, returning the
// joined snapshot if the user was visible to others.
func (m *UserManager) Disconnect(conn Connection) (protocol.UserInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[conn]
	if !ok {
		return protocol.UserInfo{}, false
	}

	delete(m.sessions, conn)
	if sess.loggedIn || sess.joined {
		if existing, found := m.byUserID[sess.userID]; found && existing == conn {
			delete(m.byUserID, sess.userID)
		}
	}

	return sess.user, sess.joined
}
