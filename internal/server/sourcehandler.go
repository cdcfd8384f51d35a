package server

import (
	"errors"
	"strings"

	"github.com/ermau/gablarski/internal/protocol"
)

// sourceHandler covers audio source registration, muting, and the relay of
// audio frames and talk state to targeted listeners.
type sourceHandler struct {
	s *Server
}

func (h *sourceHandler) handleRequestSourceList(conn Connection, message protocol.Message) {
	if !h.s.users.IsJoined(conn) {
		return
	}
	h.s.send(conn, protocol.SourceListMessage{Sources: h.s.sources.All()})
}

func (h *sourceHandler) handleRequestSource(conn Connection, message protocol.Message) {
	request := message.(protocol.RequestSource)

	user, ok := h.s.users.User(conn)
	if !ok {
		return
	}

	fail := func(state protocol.SourceResultState) {
		h.s.send(conn, protocol.SourceResultMessage{State: state, SourceName: request.Name})
	}

	if strings.TrimSpace(request.Name) == "" {
		fail(protocol.SourceFailedInvalidName)
		return
	}
	if !h.s.permissions.can(user.UserID, 0, protocol.CanRequestSource) {
		fail(protocol.SourceFailedPermissions)
		return
	}
	if request.Channels < protocol.MinAudioChannels || request.Channels > protocol.MaxAudioChannels {
		fail(protocol.SourceFailedInvalidChannels)
		return
	}
	if request.Frequency < protocol.MinFrequency || request.Frequency > protocol.MaxFrequency {
		fail(protocol.SourceFailedInvalidFrequency)
		return
	}
	if request.FrameSize < protocol.MinFrameSize || request.FrameSize > protocol.MaxFrameSize {
		fail(protocol.SourceFailedInvalidFrameSize)
		return
	}
	if request.Complexity < protocol.MinComplexity || request.Complexity > protocol.MaxComplexity {
		fail(protocol.SourceFailedInvalidComplexity)
		return
	}

	bitrate := request.Bitrate
	if bitrate == 0 {
		bitrate = h.s.Config.Audio.DefaultBitrate
	}
	if bitrate < protocol.MinCodecBitrate || bitrate > protocol.MaxCodecBitrate {
		fail(protocol.SourceFailedInvalidBitrate)
		return
	}
	if min := h.s.Config.Audio.MinimumBitrate; min > 0 && bitrate < min {
		bitrate = min
	}
	if max := h.s.Config.Audio.MaximumBitrate; max > 0 && bitrate > max {
		bitrate = max
	}

	source, err := h.s.sources.Create(protocol.AudioSource{
		Name:       request.Name,
		OwnerID:    user.UserID,
		Bitrate:    bitrate,
		Channels:   request.Channels,
		Frequency:  request.Frequency,
		FrameSize:  request.FrameSize,
		Complexity: request.Complexity,
	})
	switch {
	case errors.Is(err, ErrDuplicateSourceName):
		fail(protocol.SourceFailedDuplicateSourceName)
		return
	case errors.Is(err, ErrSourceLimit):
		fail(protocol.SourceFailedLimit)
		return
	case err != nil:
		fail(protocol.SourceFailedUnknown)
		return
	}

	h.s.send(conn, protocol.SourceResultMessage{
		State:      protocol.SourceSucceeded,
		SourceName: source.Name,
		Source:     source,
	})
	h.s.broadcastOthers(conn, protocol.SourceResultMessage{
		State:      protocol.SourceNewSource,
		SourceName: source.Name,
		Source:     source,
	})
	h.s.Logger.Infof("user %q (id %d) registered source %q (id %d)", user.Nickname, user.UserID, source.Name, source.ID)
}

func (h *sourceHandler) handleMuteSource(conn Connection, message protocol.Message) {
	mute := message.(protocol.RequestMuteSource)

	if !h.s.permissions.can(h.s.requesterID(conn), 0, protocol.CanMuteAudioSource) {
		h.s.send(conn, protocol.PermissionDenied{DeniedMessage: protocol.RequestMuteSourceType})
		return
	}

	source, ok := h.s.sources.ToggleMute(mute.SourceID)
	if !ok {
		return
	}
	h.s.broadcastJoined(protocol.SourceMuted{SourceID: source.ID, IsMuted: source.IsMuted})
}

func (h *sourceHandler) handleAudioData(conn Connection, message protocol.Message) {
	audio := message.(protocol.AudioData)

	sender, source, ok := h.senderAndSource(conn, audio.SourceID)
	if !ok || !h.canRelay(sender, audio.TargetIDs) {
		return
	}

	h.relay(conn, audio.TargetType, audio.TargetIDs, protocol.AudioDataRelay{
		SourceID: source.ID,
		Frames:   audio.Frames,
	})
}

func (h *sourceHandler) handleSourceStateChange(conn Connection, message protocol.Message) {
	change := message.(protocol.AudioSourceStateChange)

	sender, source, ok := h.senderAndSource(conn, change.SourceID)
	if !ok || !h.canRelay(sender, change.TargetIDs) {
		return
	}

	h.relay(conn, change.TargetType, change.TargetIDs, protocol.AudioSourceStateChanged{
		SourceID: source.ID,
		Starting: change.Starting,
	})
}

func (h *sourceHandler) handleRemoveSource(conn Connection, message protocol.Message) {
	remove := message.(protocol.RemoveSource)

	user, ok := h.s.users.User(conn)
	if !ok {
		return
	}
	source, ok := h.s.sources.Get(remove.SourceID)
	if !ok || source.OwnerID != user.UserID {
		return
	}

	h.s.broadcastJoined(protocol.SourcesRemovedMessage{Sources: []protocol.AudioSource{source}})
	h.s.sources.Remove(source.ID)
	h.s.Logger.Infof("user %q (id %d) removed source %q (id %d)", user.Nickname, user.UserID, source.Name, source.ID)
}

// canRelay gates the audio path: sending needs CanSendAudio in the sender's
// current channel, and addressing more than one target additionally needs
// the global CanSendAudioToMultipleTargets.
func (h *sourceHandler) canRelay(sender protocol.UserInfo, targetIDs []int) bool {
	if !h.s.permissions.can(sender.UserID, sender.CurrentChannelID, protocol.CanSendAudio) {
		return false
	}
	if len(targetIDs) > 1 && !h.s.permissions.can(sender.UserID, 0, protocol.CanSendAudioToMultipleTargets) {
		return false
	}
	return true
}

// senderAndSource validates that the connection is a joined, unmuted user
// sending through an unmuted source it owns. Audio path failures are
// dropped silently.
func (h *sourceHandler) senderAndSource(conn Connection, sourceID int) (protocol.UserInfo, protocol.AudioSource, bool) {
	sender, ok := h.s.users.User(conn)
	if !ok || sender.IsMuted {
		return protocol.UserInfo{}, protocol.AudioSource{}, false
	}
	source, ok := h.s.sources.Get(sourceID)
	if !ok || source.OwnerID != sender.UserID || source.IsMuted {
		return protocol.UserInfo{}, protocol.AudioSource{}, false
	}
	return sender, source, true
}

// relay delivers a message to every joined connection matching the target
// filter, never back to the sender.
func (h *sourceHandler) relay(sender Connection, targetType protocol.TargetType, targetIDs []int, message protocol.Message) {
	targets := make(map[int]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		targets[id] = struct{}{}
	}

	h.s.broadcast(func(conn Connection) bool {
		if conn == sender {
			return false
		}
		user, ok := h.s.users.User(conn)
		if !ok {
			return false
		}
		switch targetType {
		case protocol.TargetChannels:
			_, ok := targets[user.CurrentChannelID]
			return ok
		case protocol.TargetUsers:
			_, ok := targets[user.UserID]
			return ok
		default:
			return false
		}
	}, message)
}

// removeSourcesFor clears a departing user's sources and announces the
// removal to everyone else before the session disappears.
func (h *sourceHandler) removeSourcesFor(conn Connection, user protocol.UserInfo) {
	owned := h.s.sources.OwnedBy(user.UserID)
	if len(owned) == 0 {
		return
	}
	h.s.broadcastOthers(conn, protocol.SourcesRemovedMessage{Sources: owned})
	h.s.sources.RemoveOwnedBy(user.UserID)
}
