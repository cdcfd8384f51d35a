// Package server implements the session/protocol engine: connection
// lifecycle, channel and user state, permission enforcement, audio source
// registration and routing, and the serialized message dispatch that keeps
// it all consistent under concurrency.
package server

import (
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ermau/gablarski/internal/core"
	coredebug "github.com/ermau/gablarski/internal/core/debug"
	"github.com/ermau/gablarski/internal/protocol"
	"github.com/ermau/gablarski/internal/provider"
)

// Redirector may send a connecting client elsewhere before session setup.
type Redirector interface {
	// Redirect returns a non-nil redirect to bounce the client, or nil to
	// let the connection proceed.
	Redirect(version int, ipAddr string) *protocol.Redirect
}

type handlerFunc func(conn Connection, message protocol.Message)

// task is one unit of serialized work: either an inbound message or a
// function (provider callbacks, async completions) rejoining the mutation
// stream.
type task struct {
	conn    Connection
	message protocol.Message
	fn      func()
	done    chan struct{}
}

// Server owns the providers and managers, registers all message handlers
// into an immutable dispatch table, and serializes every state mutation
// through a single worker goroutine.
type Server struct {
	Config *core.Config
	Logger *logrus.Logger

	users   *UserManager
	sources *SourceManager

	userProvider    provider.UserProvider
	channelProvider provider.ChannelProvider
	permissions     *permissionResolver

	userHandler    *userHandler
	channelHandler *channelHandler
	sourceHandler  *sourceHandler

	dispatch map[protocol.MessageType]handlerFunc

	redirectors []Redirector

	// One-shot registration approvals: folded username -> approval token.
	approvals map[string]string

	tasks chan task
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	outboxMu sync.Mutex
	outboxes map[Connection]*outbox
}

// New builds a Server against the given providers. Redirectors may be added
// before Start; the dispatch table is fixed from construction on.
func New(
	cfg *core.Config,
	logger *logrus.Logger,
	users provider.UserProvider,
	channels provider.ChannelProvider,
	permissions provider.PermissionsProvider,
) *Server {
	s := &Server{
		Config:          cfg,
		Logger:          logger,
		users:           NewUserManager(),
		sources:         NewSourceManager(),
		userProvider:    users,
		channelProvider: channels,
		permissions:     newPermissionResolver(permissions, logger),
		approvals:       make(map[string]string),
		tasks:           make(chan task, 256),
		quit:            make(chan struct{}),
		outboxes:        make(map[Connection]*outbox),
	}

	s.userHandler = &userHandler{s}
	s.channelHandler = &channelHandler{s}
	s.sourceHandler = &sourceHandler{s}

	s.dispatch = map[protocol.MessageType]handlerFunc{
		protocol.ConnectType:              s.userHandler.handleConnect,
		protocol.LoginType:                s.userHandler.handleLogin,
		protocol.JoinType:                 s.userHandler.handleJoin,
		protocol.RequestUserListType:      s.userHandler.handleRequestUserList,
		protocol.ChannelChangeType:        s.userHandler.handleChannelChange,
		protocol.KickUserType:             s.userHandler.handleKickUser,
		protocol.BanUserType:              s.userHandler.handleBanUser,
		protocol.RequestMuteUserType:      s.userHandler.handleMuteUser,
		protocol.SetStatusType:            s.userHandler.handleSetStatus,
		protocol.SetCommentType:           s.userHandler.handleSetComment,
		protocol.RegisterType:             s.userHandler.handleRegister,
		protocol.RegistrationApprovalType: s.userHandler.handleRegistrationApproval,

		protocol.RequestChannelListType: s.channelHandler.handleRequestChannelList,
		protocol.ChannelEditType:        s.channelHandler.handleChannelEdit,

		protocol.RequestSourceListType:      s.sourceHandler.handleRequestSourceList,
		protocol.RequestSourceType:          s.sourceHandler.handleRequestSource,
		protocol.RequestMuteSourceType:      s.sourceHandler.handleMuteSource,
		protocol.AudioDataType:              s.sourceHandler.handleAudioData,
		protocol.AudioSourceStateChangeType: s.sourceHandler.handleSourceStateChange,
		protocol.RemoveSourceType:           s.sourceHandler.handleRemoveSource,

		protocol.QueryServerType: s.handleQueryServer,
	}

	return s
}

// AddRedirector registers a redirect policy consulted at Connect time.
// Redirectors must be added before Start.
func (s *Server) AddRedirector(r Redirector) {
	s.redirectors = append(s.redirectors, r)
}

// Start registers the provider change callbacks and launches the dispatch
// worker.
func (s *Server) Start() {
	s.channelProvider.SetChangeCallback(func() {
		s.do(s.channelHandler.onChannelsChanged)
	})
	s.permissions.provider.SetChangeCallback(func(userID int) {
		s.do(func() { s.onPermissionsChanged(userID) })
	})

	s.wg.Add(1)
	go s.run()

	s.Logger.Infof("server %q started (protocol version %d)", s.Config.Server.Name, protocol.ProtocolVersion)
}

// Stop unregisters provider callbacks, stops the dispatch worker, and drops
// every remaining connection.
func (s *Server) Stop() {
	s.once.Do(func() {
		s.channelProvider.SetChangeCallback(nil)
		s.permissions.provider.SetChangeCallback(nil)
		close(s.quit)
	})
	s.wg.Wait()

	for _, conn := range s.users.Connections() {
		s.users.Disconnect(conn)
		s.closeOutbox(conn)
		_ = conn.Close()
	}
	s.Logger.Info("server stopped")
}

// Receive hands an inbound message to the serialized dispatch queue. The
// transport calls this once per decoded message.
func (s *Server) Receive(conn Connection, message protocol.Message) {
	select {
	case s.tasks <- task{conn: conn, message: message}:
	case <-s.quit:
	}
}

// HandleDisconnect is called by the transport when a connection drops. It
// returns only after the connection has been removed from all session state
// and presence loss has been broadcast, so no handler can observe a
// half-removed session afterwards.
func (s *Server) HandleDisconnect(conn Connection) {
	done := make(chan struct{})
	select {
	case s.tasks <- task{fn: func() { s.dropConnection(conn) }, done: done}:
		<-done
	case <-s.quit:
		s.dropConnection(conn)
	}
}

// do enqueues a function onto the serialized mutation stream.
func (s *Server) do(fn func()) {
	select {
	case s.tasks <- task{fn: fn}:
	case <-s.quit:
	}
}

func (s *Server) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case t := <-s.tasks:
			s.process(t)
		}
	}
}

// process executes one task with panic isolation: a failure in one handler
// must never stop subsequent messages from being processed.
func (s *Server) process(t task) {
	defer func() {
		if err := recover(); err != nil {
			s.Logger.Errorf("recovered from handler panic: %v, trace: %s", err, debug.Stack())
		}
		if t.done != nil {
			close(t.done)
		}
	}()

	if t.fn != nil {
		t.fn()
		return
	}

	if s.Config.Debugging.MessageLoggingEnabled {
		s.Logger.Debugf("dispatching message from %s:\n%s", t.conn.IPAddr(), coredebug.DumpMessage(t.message))
	}

	handler, ok := s.dispatch[t.message.MessageType()]
	if !ok {
		s.Logger.Infof("received unknown message type %x from %s", t.message.MessageType(), t.conn.IPAddr())
		return
	}
	handler(t.conn, t.message)
}

func (s *Server) onPermissionsChanged(userID int) {
	s.permissions.invalidate(userID)

	// Push the refreshed set to the affected user if they are online.
	conn, ok := s.users.ConnectionFor(userID)
	if !ok {
		return
	}
	s.send(conn, protocol.PermissionsMessage{
		UserID:      userID,
		Permissions: s.permissions.permissions(userID),
	})
}

// send queues a message for one connection. Sends are fire-and-forget with
// respect to dispatch: a slow or dead receiver only ever loses its own
// messages.
func (s *Server) send(conn Connection, message protocol.Message) {
	s.outboxMu.Lock()
	o, ok := s.outboxes[conn]
	if !ok {
		o = newOutbox(conn, func(err error) {
			s.Logger.Warnf("error sending to %s: %v", conn.IPAddr(), err)
		})
		s.outboxes[conn] = o
	}
	s.outboxMu.Unlock()

	if !o.push(message) {
		s.Logger.Warnf("dropping message for slow connection %s", conn.IPAddr())
	}
}

func (s *Server) closeOutbox(conn Connection) {
	s.outboxMu.Lock()
	if o, ok := s.outboxes[conn]; ok {
		o.close()
		delete(s.outboxes, conn)
	}
	s.outboxMu.Unlock()
}

// broadcast sends a message to every connection for which the predicate
// holds. A nil predicate matches every registered connection.
func (s *Server) broadcast(match func(Connection) bool, message protocol.Message) {
	for _, conn := range s.users.Connections() {
		if match == nil || match(conn) {
			s.send(conn, message)
		}
	}
}

// broadcastJoined sends a message to every joined connection.
func (s *Server) broadcastJoined(message protocol.Message) {
	s.broadcast(s.users.IsJoined, message)
}

// broadcastOthers sends a message to every joined connection except one.
func (s *Server) broadcastOthers(except Connection, message protocol.Message) {
	s.broadcast(func(conn Connection) bool {
		return conn != except && s.users.IsJoined(conn)
	}, message)
}

// dropConnection removes a connection from all server state: sources are
// deregistered (with SourcesRemoved broadcast before removal finalizes),
// the session is removed, and presence loss is broadcast.
func (s *Server) dropConnection(conn Connection) {
	if user, joined := s.users.User(conn); joined {
		s.sourceHandler.removeSourcesFor(conn, user)
	}

	user, wasJoined := s.users.Disconnect(conn)
	s.closeOutbox(conn)
	_ = conn.Close()

	if wasJoined {
		s.broadcastJoined(protocol.UserDisconnected{UserID: user.UserID})
		s.Logger.Infof("user %q (id %d) disconnected", user.Nickname, user.UserID)
	}
}

// requesterID resolves the principal for a permission check: the joined
// user's id, or 0 (the unauthenticated default) when the connection has no
// identity yet.
func (s *Server) requesterID(conn Connection) int {
	if user, ok := s.users.User(conn); ok {
		return user.UserID
	}
	if userID, _, ok := s.users.Identity(conn); ok {
		return userID
	}
	return 0
}

func (s *Server) serverInfo() protocol.ServerInfo {
	return protocol.ServerInfo{
		Name:             s.Config.Server.Name,
		Description:      s.Config.Server.Description,
		WelcomeMessage:   s.Config.Server.WelcomeMessage,
		ProtocolVersion:  protocol.ProtocolVersion,
		GuestsAllowed:    s.Config.Server.AllowGuests,
		PasswordRequired: s.Config.Server.Password != "",
	}
}

// handleQueryServer answers an in-session query. The same snapshot is
// exposed through QuerySnapshot for connectionless datagram fronts.
func (s *Server) handleQueryServer(conn Connection, message protocol.Message) {
	query := message.(protocol.QueryServer)
	s.send(conn, s.QuerySnapshot(query.ServerInfoOnly))
}

// QuerySnapshot returns server information and, when the guest permission
// set allows listing them, channel and user snapshots. It establishes no
// session and is safe to call from any goroutine.
func (s *Server) QuerySnapshot(infoOnly bool) protocol.QueryServerResult {
	result := protocol.QueryServerResult{Info: s.serverInfo()}
	if infoOnly {
		return result
	}

	if s.permissions.can(0, 0, protocol.CanRequestChannelList) {
		if channels, err := s.channelProvider.GetChannels(); err == nil {
			result.Channels = channels
		}
	}
	if s.permissions.can(0, 0, protocol.CanRequestUserList) {
		result.Users = s.users.Users()
	}
	return result
}
