package server

import (
	"strings"

	"github.com/ermau/gablarski/internal/protocol"
)

// channelHandler covers channel listing and channel editing, plus the
// relocation of users stranded by channel deletions.
type channelHandler struct {
	s *Server
}

func (h *channelHandler) handleRequestChannelList(conn Connection, message protocol.Message) {
	if !h.s.permissions.can(h.s.requesterID(conn), 0, protocol.CanRequestChannelList) {
		h.s.send(conn, protocol.PermissionDenied{DeniedMessage: protocol.RequestChannelListType})
		return
	}
	h.sendChannelList(conn)
}

func (h *channelHandler) sendChannelList(conn Connection) {
	channels, err := h.s.channelProvider.GetChannels()
	if err != nil {
		h.s.Logger.Errorf("unable to list channels: %v", err)
		return
	}
	defaultChannel, err := h.s.channelProvider.DefaultChannel()
	if err != nil {
		h.s.Logger.Errorf("unable to resolve default channel: %v", err)
		return
	}
	h.s.send(conn, protocol.ChannelListMessage{
		Channels:         channels,
		DefaultChannelID: defaultChannel.ChannelID,
	})
}

func (h *channelHandler) findChannel(channelID int) (protocol.ChannelInfo, bool) {
	channels, err := h.s.channelProvider.GetChannels()
	if err != nil {
		h.s.Logger.Errorf("unable to list channels: %v", err)
		return protocol.ChannelInfo{}, false
	}
	for _, channel := range channels {
		if channel.ChannelID == channelID {
			return channel, true
		}
	}
	return protocol.ChannelInfo{}, false
}

func (h *channelHandler) handleChannelEdit(conn Connection, message protocol.Message) {
	edit := message.(protocol.ChannelEdit)

	requesterID := h.s.requesterID(conn)

	var permission protocol.PermissionName
	switch {
	case edit.Delete:
		permission = protocol.CanDeleteChannel
	case edit.Channel.ChannelID == 0:
		permission = protocol.CanCreateChannel
	default:
		permission = protocol.CanEditChannel
	}
	if !h.s.permissions.can(requesterID, edit.Channel.ChannelID, permission) {
		h.s.send(conn, protocol.ChannelEditResultMessage{
			State:     protocol.ChannelEditFailedPermissions,
			ChannelID: edit.Channel.ChannelID,
		})
		return
	}

	if !h.s.channelProvider.UpdateSupported() {
		h.s.send(conn, protocol.ChannelEditResultMessage{
			State:     protocol.ChannelEditFailedUpdateNotSupported,
			ChannelID: edit.Channel.ChannelID,
		})
		return
	}

	if edit.Delete {
		go func() {
			state, err := h.s.channelProvider.DeleteChannel(edit.Channel.ChannelID)
			h.s.do(func() { h.finishEdit(conn, edit.Channel.ChannelID, state, err) })
		}()
		return
	}

	if strings.TrimSpace(edit.Channel.Name) == "" {
		h.s.send(conn, protocol.ChannelEditResultMessage{
			State:     protocol.ChannelEditFailedInvalidName,
			ChannelID: edit.Channel.ChannelID,
		})
		return
	}

	go func() {
		saved, state, err := h.s.channelProvider.SaveChannel(edit.Channel)
		h.s.do(func() { h.finishEdit(conn, saved.ChannelID, state, err) })
	}()
}

func (h *channelHandler) finishEdit(conn Connection, channelID int, state protocol.ChannelEditResultState, err error) {
	if err != nil {
		h.s.Logger.Errorf("channel edit failed: %v", err)
		state = protocol.ChannelEditFailedUnknown
	}
	h.s.send(conn, protocol.ChannelEditResultMessage{State: state, ChannelID: channelID})
}

// onChannelsChanged runs on the dispatch worker whenever the channel
// provider reports a change. Users left in a channel that no longer exists
// are moved to the default channel, then the refreshed list goes out to
// every connection.
func (h *channelHandler) onChannelsChanged() {
	channels, err := h.s.channelProvider.GetChannels()
	if err != nil {
		h.s.Logger.Errorf("unable to list channels: %v", err)
		return
	}
	defaultChannel, err := h.s.channelProvider.DefaultChannel()
	if err != nil {
		h.s.Logger.Errorf("unable to resolve default channel: %v", err)
		return
	}

	valid := make(map[int]struct{}, len(channels))
	for _, channel := range channels {
		valid[channel.ChannelID] = struct{}{}
	}

	for _, user := range h.s.users.Users() {
		if _, ok := valid[user.CurrentChannelID]; ok {
			continue
		}
		previous := user.CurrentChannelID
		if _, ok := h.s.users.Move(user.UserID, defaultChannel.ChannelID); ok {
			h.s.broadcastJoined(protocol.UserChangedChannel{
				UserID:            user.UserID,
				ChannelID:         defaultChannel.ChannelID,
				PreviousChannelID: previous,
			})
		}
	}

	h.s.broadcast(nil, protocol.ChannelListMessage{
		Channels:         channels,
		DefaultChannelID: defaultChannel.ChannelID,
	})
}
