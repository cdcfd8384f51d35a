package server

import (
	"github.com/google/uuid"

	"github.com/ermau/gablarski/internal/protocol"
	"github.com/ermau/gablarski/internal/provider"
)

// userHandler covers the user lifecycle: connecting, logging in, joining,
// presence updates, moderation, and account registration.
type userHandler struct {
	s *Server
}

func (h *userHandler) handleConnect(conn Connection, message protocol.Message) {
	connect := message.(protocol.Connect)

	if connect.Version < protocol.ProtocolVersion {
		h.s.send(conn, protocol.ConnectionRejected{Reason: protocol.RejectedIncompatibleVersion})
		return
	}

	for _, r := range h.s.redirectors {
		if redirect := r.Redirect(connect.Version, conn.IPAddr()); redirect != nil {
			h.s.send(conn, *redirect)
			return
		}
	}

	if max := h.s.Config.MaxConnections; max > 0 && h.s.users.ConnectionCount() >= max {
		h.s.send(conn, protocol.ConnectionRejected{Reason: protocol.RejectedServerFull})
		return
	}

	if h.ipBanned(conn.IPAddr()) {
		h.s.send(conn, protocol.ConnectionRejected{Reason: protocol.RejectedBanned})
		return
	}

	h.s.users.Connect(conn)
	h.s.send(conn, protocol.ServerInfoMessage{Info: h.s.serverInfo()})
}

func (h *userHandler) ipBanned(ipAddr string) bool {
	bans, err := h.s.userProvider.Bans()
	if err != nil {
		h.s.Logger.Warnf("unable to check bans for %s: %v", ipAddr, err)
		return false
	}
	for _, ban := range bans {
		if ban.IPAddress != "" && ban.IPAddress == ipAddr && !ban.Expired() {
			return true
		}
	}
	return false
}

func (h *userHandler) handleLogin(conn Connection, message protocol.Message) {
	login := message.(protocol.Login)

	if !h.s.users.IsConnected(conn) {
		return
	}

	go func() {
		result, err := h.s.userProvider.Login(login.Username, login.Password)
		h.s.do(func() { h.finishLogin(conn, login.Username, result, err) })
	}()
}

func (h *userHandler) finishLogin(conn Connection, username string, result provider.LoginResult, err error) {
	if !h.s.users.IsConnected(conn) {
		return
	}
	if err != nil {
		h.s.Logger.Errorf("login failed for %q: %v", username, err)
		h.s.send(conn, protocol.LoginResultMessage{State: protocol.LoginFailedUnknown})
		return
	}
	if !result.Succeeded() {
		h.s.send(conn, protocol.LoginResultMessage{State: result.State})
		return
	}

	if stale, ok := h.s.users.ConnectionFor(result.UserID); ok && stale != conn {
		h.s.Logger.Infof("user %q (id %d) logged in again, dropping stale session", username, result.UserID)
		h.s.dropConnection(stale)
	}

	h.s.users.Login(conn, result.UserID, username)
	h.s.send(conn, protocol.LoginResultMessage{UserID: result.UserID, State: protocol.LoginSucceeded})
	h.s.send(conn, protocol.PermissionsMessage{
		UserID:      result.UserID,
		Permissions: h.s.permissions.permissions(result.UserID),
	})
	h.s.Logger.Infof("user %q (id %d) logged in", username, result.UserID)
}

func (h *userHandler) handleJoin(conn Connection, message protocol.Message) {
	join := message.(protocol.Join)

	if !h.s.users.IsConnected(conn) || h.s.users.IsJoined(conn) {
		return
	}

	nickname := foldNickname(join.Nickname)
	if nickname == "" {
		h.s.send(conn, protocol.JoinResultMessage{State: protocol.JoinFailedNickname})
		return
	}
	if password := h.s.Config.Server.Password; password != "" && join.ServerPassword != password {
		h.s.send(conn, protocol.JoinResultMessage{State: protocol.JoinFailedServerPassword})
		return
	}

	if userID, username, ok := h.s.users.Identity(conn); ok {
		h.finishJoin(conn, userID, username, join)
		return
	}

	if !h.s.Config.Server.AllowGuests {
		h.s.send(conn, protocol.JoinResultMessage{State: protocol.JoinFailedUsername})
		return
	}

	go func() {
		result, err := h.s.userProvider.GuestLogin(join.Nickname)
		h.s.do(func() { h.finishGuestJoin(conn, join, result, err) })
	}()
}

func (h *userHandler) finishGuestJoin(conn Connection, join protocol.Join, result provider.LoginResult, err error) {
	if !h.s.users.IsConnected(conn) || h.s.users.IsJoined(conn) {
		return
	}
	if err != nil {
		h.s.Logger.Errorf("guest login failed for %q: %v", join.Nickname, err)
		h.s.send(conn, protocol.JoinResultMessage{State: protocol.JoinFailedUnknown})
		return
	}
	if !result.Succeeded() {
		state := protocol.JoinFailedUsername
		if result.State == protocol.LoginFailedBanned {
			state = protocol.JoinFailedNickname
		}
		h.s.send(conn, protocol.JoinResultMessage{State: state})
		return
	}
	h.finishJoin(conn, result.UserID, "", join)
}

func (h *userHandler) finishJoin(conn Connection, userID int, username string, join protocol.Join) {
	if existing, ok := h.s.users.FindNickname(join.Nickname); ok {
		// A registered user may reclaim their nickname from a stale
		// session of their own account. Anyone else is turned away.
		if userID <= 0 || existing.UserID != userID {
			h.s.send(conn, protocol.JoinResultMessage{State: protocol.JoinFailedNicknameInUse})
			return
		}
		if stale, ok := h.s.users.ConnectionFor(existing.UserID); ok {
			h.s.Logger.Infof("user %q (id %d) rejoined, dropping stale session", join.Nickname, userID)
			h.s.dropConnection(stale)
		}
	}

	defaultChannel, err := h.s.channelProvider.DefaultChannel()
	if err != nil {
		h.s.Logger.Errorf("unable to resolve default channel: %v", err)
		h.s.send(conn, protocol.JoinResultMessage{State: protocol.JoinFailedUnknown})
		return
	}

	user := protocol.UserInfo{
		UserID:           userID,
		Username:         username,
		Nickname:         join.Nickname,
		Phonetic:         join.Phonetic,
		CurrentChannelID: defaultChannel.ChannelID,
	}
	if !h.s.users.Join(conn, user) {
		h.s.send(conn, protocol.JoinResultMessage{State: protocol.JoinFailedUnknown})
		return
	}

	h.s.send(conn, protocol.JoinResultMessage{State: protocol.JoinSucceeded, User: user})
	h.s.send(conn, protocol.PermissionsMessage{
		UserID:      userID,
		Permissions: h.s.permissions.permissions(userID),
	})
	h.s.channelHandler.sendChannelList(conn)
	h.s.send(conn, protocol.UserListMessage{Users: h.s.users.Users()})
	h.s.send(conn, protocol.SourceListMessage{Sources: h.s.sources.All()})

	h.s.broadcastOthers(conn, protocol.UserJoined{User: user})
	h.s.Logger.Infof("user %q (id %d) joined", user.Nickname, user.UserID)
}

func (h *userHandler) handleRequestUserList(conn Connection, message protocol.Message) {
	if !h.s.permissions.can(h.s.requesterID(conn), 0, protocol.CanRequestUserList) {
		h.s.send(conn, protocol.PermissionDenied{DeniedMessage: protocol.RequestUserListType})
		return
	}
	h.s.send(conn, protocol.UserListMessage{Users: h.s.users.Users()})
}

func (h *userHandler) handleChannelChange(conn Connection, message protocol.Message) {
	change := message.(protocol.ChannelChange)

	requester, ok := h.s.users.User(conn)
	if !ok {
		return
	}

	targetID := change.TargetUserID
	if targetID == 0 {
		targetID = requester.UserID
	}

	target, ok := h.s.users.UserByID(targetID)
	if !ok {
		h.s.send(conn, protocol.ChannelChangeResultMessage{
			State:        protocol.ChannelChangeFailedUnknown,
			TargetUserID: targetID,
			ChannelID:    change.ChannelID,
		})
		return
	}

	channel, ok := h.s.channelHandler.findChannel(change.ChannelID)
	if !ok {
		h.s.send(conn, protocol.ChannelChangeResultMessage{
			State:        protocol.ChannelChangeFailedUnknownChannel,
			TargetUserID: targetID,
			ChannelID:    change.ChannelID,
		})
		return
	}

	permission := protocol.CanChangeChannel
	if targetID != requester.UserID {
		permission = protocol.CanChangePlayersChannel
	}
	if !h.s.permissions.can(requester.UserID, change.ChannelID, permission) {
		h.s.send(conn, protocol.ChannelChangeResultMessage{
			State:        protocol.ChannelChangeFailedPermissions,
			TargetUserID: targetID,
			ChannelID:    change.ChannelID,
		})
		return
	}
	if channel.UserLimit > 0 && h.s.users.ChannelOccupancy(channel.ChannelID) >= channel.UserLimit {
		h.s.send(conn, protocol.ChannelChangeResultMessage{
			State:        protocol.ChannelChangeFailedFull,
			TargetUserID: targetID,
			ChannelID:    change.ChannelID,
		})
		return
	}

	previous := target.CurrentChannelID
	if _, ok := h.s.users.Move(targetID, channel.ChannelID); !ok {
		return
	}

	h.s.send(conn, protocol.ChannelChangeResultMessage{
		State:        protocol.ChannelChangeSucceeded,
		TargetUserID: targetID,
		ChannelID:    channel.ChannelID,
	})
	h.s.broadcastJoined(protocol.UserChangedChannel{
		UserID:            targetID,
		ChannelID:         channel.ChannelID,
		PreviousChannelID: previous,
		RequesterID:       requester.UserID,
	})
}

func (h *userHandler) handleKickUser(conn Connection, message protocol.Message) {
	kick := message.(protocol.KickUser)

	requesterID := h.s.requesterID(conn)
	target, ok := h.s.users.UserByID(kick.UserID)
	if !ok {
		return
	}

	if kick.FromServer {
		if !h.s.permissions.can(requesterID, 0, protocol.CanKickPlayerFromServer) {
			h.s.send(conn, protocol.PermissionDenied{DeniedMessage: protocol.KickUserType})
			return
		}
	} else if !h.s.permissions.can(requesterID, target.CurrentChannelID, protocol.CanKickPlayerFromChannel) {
		h.s.send(conn, protocol.PermissionDenied{DeniedMessage: protocol.KickUserType})
		return
	}

	// Announce the kick while the target is still visible to everyone,
	// then act on it.
	h.s.broadcastJoined(protocol.UserKicked{
		UserID:     target.UserID,
		KickerID:   requesterID,
		FromServer: kick.FromServer,
	})

	if kick.FromServer {
		if targetConn, ok := h.s.users.ConnectionFor(target.UserID); ok {
			h.s.dropConnection(targetConn)
		}
		return
	}

	defaultChannel, err := h.s.channelProvider.DefaultChannel()
	if err != nil {
		h.s.Logger.Errorf("unable to resolve default channel: %v", err)
		return
	}
	if defaultChannel.ChannelID == target.CurrentChannelID {
		return
	}
	if _, ok := h.s.users.Move(target.UserID, defaultChannel.ChannelID); ok {
		h.s.broadcastJoined(protocol.UserChangedChannel{
			UserID:            target.UserID,
			ChannelID:         defaultChannel.ChannelID,
			PreviousChannelID: target.CurrentChannelID,
			RequesterID:       requesterID,
		})
	}
}

func (h *userHandler) handleBanUser(conn Connection, message protocol.Message) {
	ban := message.(protocol.BanUser)

	if !h.s.permissions.can(h.s.requesterID(conn), 0, protocol.CanBanUser) {
		h.s.send(conn, protocol.PermissionDenied{DeniedMessage: protocol.BanUserType})
		return
	}

	go func() {
		var err error
		if ban.Removal {
			err = h.s.userProvider.RemoveBan(ban.Ban)
		} else {
			err = h.s.userProvider.AddBan(ban.Ban)
		}
		if err != nil {
			h.s.Logger.Errorf("unable to update bans: %v", err)
			return
		}
		if !ban.Removal {
			h.s.do(func() { h.dropBanned(ban.Ban) })
		}
	}()
}

// dropBanned disconnects any joined user matching a freshly added ban.
func (h *userHandler) dropBanned(ban protocol.BanInfo) {
	for _, conn := range h.s.users.Connections() {
		user, joined := h.s.users.User(conn)
		if !joined {
			continue
		}
		if (ban.Username != "" && foldNickname(ban.Username) == foldNickname(user.Username)) ||
			(ban.IPAddress != "" && ban.IPAddress == conn.IPAddr()) {
			h.s.dropConnection(conn)
		}
	}
}

func (h *userHandler) handleMuteUser(conn Connection, message protocol.Message) {
	mute := message.(protocol.RequestMuteUser)

	if !h.s.permissions.can(h.s.requesterID(conn), 0, protocol.CanMuteUser) {
		h.s.send(conn, protocol.PermissionDenied{DeniedMessage: protocol.RequestMuteUserType})
		return
	}

	user, ok := h.s.users.ToggleMute(mute.UserID)
	if !ok {
		return
	}
	h.s.broadcastJoined(protocol.UserMuted{UserID: user.UserID, IsMuted: user.IsMuted})
}

func (h *userHandler) handleSetStatus(conn Connection, message protocol.Message) {
	status := message.(protocol.SetStatus)

	user, ok := h.s.users.User(conn)
	if !ok {
		return
	}
	if updated, ok := h.s.users.SetStatus(user.UserID, status.Status); ok {
		h.s.broadcastJoined(protocol.UserUpdated{User: updated})
	}
}

func (h *userHandler) handleSetComment(conn Connection, message protocol.Message) {
	comment := message.(protocol.SetComment)

	user, ok := h.s.users.User(conn)
	if !ok {
		return
	}
	if updated, ok := h.s.users.SetComment(user.UserID, comment.Comment); ok {
		h.s.broadcastJoined(protocol.UserUpdated{User: updated})
	}
}

func (h *userHandler) handleRegister(conn Connection, message protocol.Message) {
	register := message.(protocol.Register)

	if !h.s.users.IsConnected(conn) {
		return
	}

	if !h.s.userProvider.UpdateSupported() {
		h.s.send(conn, protocol.RegisterResultMessage{State: protocol.RegisterFailedUnsupported})
		return
	}

	switch h.s.userProvider.RegistrationMode() {
	case protocol.RegistrationNone:
		h.s.send(conn, protocol.RegisterResultMessage{State: protocol.RegisterFailedUnsupported})
		return
	case protocol.RegistrationPreApproved:
		folded := foldNickname(register.Username)
		if _, ok := h.s.approvals[folded]; !ok {
			h.s.send(conn, protocol.RegisterResultMessage{State: protocol.RegisterFailedNotApproved})
			return
		}
		delete(h.s.approvals, folded)
	}

	go func() {
		state, err := h.s.userProvider.Register(register.Username, register.Password)
		h.s.do(func() { h.finishRegister(conn, register.Username, state, err) })
	}()
}

func (h *userHandler) finishRegister(conn Connection, username string, state protocol.RegisterResultState, err error) {
	if !h.s.users.IsConnected(conn) {
		return
	}
	if err != nil {
		h.s.Logger.Errorf("registration failed for %q: %v", username, err)
		h.s.send(conn, protocol.RegisterResultMessage{State: protocol.RegisterFailedUnknown})
		return
	}
	h.s.send(conn, protocol.RegisterResultMessage{State: state})
	if state == protocol.RegisterSucceeded {
		h.s.Logger.Infof("registered new account %q", username)
	}
}

func (h *userHandler) handleRegistrationApproval(conn Connection, message protocol.Message) {
	approval := message.(protocol.RegistrationApproval)

	if !h.s.permissions.can(h.s.requesterID(conn), 0, protocol.CanApproveRegistrations) {
		h.s.send(conn, protocol.PermissionDenied{DeniedMessage: protocol.RegistrationApprovalType})
		return
	}

	folded := foldNickname(approval.Username)
	if folded == "" {
		return
	}
	token := uuid.NewString()
	h.s.approvals[folded] = token
	h.s.Logger.Infof("registration approved for %q (token %s)", approval.Username, token)
}
