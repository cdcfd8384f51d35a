package server

import (
	"testing"

	"github.com/ermau/gablarski/internal/protocol"
)

func TestHandleRequestChannelList(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.channels.addChannel(protocol.ChannelInfo{Name: "War Room"})
		e.permissions.grant(0, 0, protocol.CanRequestChannelList)
	})
	conn, _ := env.connectAndJoin(t, "Alice")

	env.server.Receive(conn, protocol.RequestChannelList{})

	list := expect[protocol.ChannelListMessage](t, conn)
	if len(list.Channels) != 2 {
		t.Errorf("channel count = %d, expected 2", len(list.Channels))
	}
	if list.DefaultChannelID != 1 {
		t.Errorf("default channel id = %d, expected 1", list.DefaultChannelID)
	}
}

func TestHandleRequestChannelList_Denied(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.connectAndJoin(t, "Alice")

	env.server.Receive(conn, protocol.RequestChannelList{})

	denied := expect[protocol.PermissionDenied](t, conn)
	if denied.DeniedMessage != protocol.RequestChannelListType {
		t.Errorf("denied message type = %v, expected RequestChannelList", denied.DeniedMessage)
	}
}

func TestHandleChannelEdit_Create(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanCreateChannel)
	})
	conn, _ := env.connectAndJoin(t, "Alice")

	env.server.Receive(conn, protocol.ChannelEdit{
		Channel: protocol.ChannelInfo{Name: "War Room", UserLimit: 8},
	})

	// The provider change notification refreshes everyone's channel list
	// before the edit result reaches the requester.
	list := expect[protocol.ChannelListMessage](t, conn)
	if len(list.Channels) != 2 {
		t.Errorf("channel count = %d, expected 2", len(list.Channels))
	}

	result := expect[protocol.ChannelEditResultMessage](t, conn)
	if result.State != protocol.ChannelEditSucceeded {
		t.Errorf("edit state = %v, expected success", result.State)
	}
	if result.ChannelID == 0 {
		t.Error("expected the created channel to be assigned a real id")
	}
}

func TestHandleChannelEdit_Failures(t *testing.T) {
	tests := map[string]struct {
		setup    func(*testEnv)
		edit     protocol.ChannelEdit
		expected protocol.ChannelEditResultState
	}{
		"create denied": {
			edit:     protocol.ChannelEdit{Channel: protocol.ChannelInfo{Name: "War Room"}},
			expected: protocol.ChannelEditFailedPermissions,
		},
		"blank name": {
			setup: func(e *testEnv) {
				e.permissions.grant(0, 0, protocol.CanCreateChannel)
			},
			edit:     protocol.ChannelEdit{Channel: protocol.ChannelInfo{Name: "   "}},
			expected: protocol.ChannelEditFailedInvalidName,
		},
		"provider is read only": {
			setup: func(e *testEnv) {
				e.permissions.grant(0, 0, protocol.CanCreateChannel)
				e.channels.updatable = false
			},
			edit:     protocol.ChannelEdit{Channel: protocol.ChannelInfo{Name: "War Room"}},
			expected: protocol.ChannelEditFailedUpdateNotSupported,
		},
		"delete unknown channel": {
			setup: func(e *testEnv) {
				e.permissions.grant(0, 0, protocol.CanDeleteChannel)
			},
			edit:     protocol.ChannelEdit{Channel: protocol.ChannelInfo{ChannelID: 17}, Delete: true},
			expected: protocol.ChannelEditFailedUnknownChannel,
		},
		"delete default channel": {
			setup: func(e *testEnv) {
				e.permissions.grant(0, 0, protocol.CanDeleteChannel)
			},
			edit:     protocol.ChannelEdit{Channel: protocol.ChannelInfo{ChannelID: 1}, Delete: true},
			expected: protocol.ChannelEditFailedReadOnly,
		},
		"edit read-only channel": {
			setup: func(e *testEnv) {
				e.permissions.grant(0, 0, protocol.CanEditChannel)
			},
			edit:     protocol.ChannelEdit{Channel: protocol.ChannelInfo{ChannelID: 1, Name: "Renamed"}},
			expected: protocol.ChannelEditFailedReadOnly,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, tt.setup)
			conn, _ := env.connectAndJoin(t, "Alice")

			env.server.Receive(conn, tt.edit)

			result := expect[protocol.ChannelEditResultMessage](t, conn)
			if result.State != tt.expected {
				t.Errorf("edit state = %v, expected %v", result.State, tt.expected)
			}
		})
	}
}

func TestHandleChannelEdit_DeleteRelocatesUsers(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.channels.addChannel(protocol.ChannelInfo{Name: "War Room"})
		e.permissions.grant(0, 0, protocol.CanChangeChannel)
		e.permissions.grant(0, 0, protocol.CanDeleteChannel)
	})
	aliceConn, alice := env.connectAndJoin(t, "Alice")

	env.server.Receive(aliceConn, protocol.ChannelChange{ChannelID: 2})
	expect[protocol.ChannelChangeResultMessage](t, aliceConn)
	expect[protocol.UserChangedChannel](t, aliceConn)

	env.server.Receive(aliceConn, protocol.ChannelEdit{
		Channel: protocol.ChannelInfo{ChannelID: 2},
		Delete:  true,
	})

	moved := expect[protocol.UserChangedChannel](t, aliceConn)
	if moved.UserID != alice.UserID || moved.ChannelID != 1 || moved.PreviousChannelID != 2 {
		t.Errorf("unexpected relocation: %+v", moved)
	}

	list := expect[protocol.ChannelListMessage](t, aliceConn)
	if len(list.Channels) != 1 {
		t.Errorf("channel count = %d, expected 1", len(list.Channels))
	}

	result := expect[protocol.ChannelEditResultMessage](t, aliceConn)
	if result.State != protocol.ChannelEditSucceeded {
		t.Errorf("edit state = %v, expected success", result.State)
	}

	if user, ok := env.server.users.UserByID(alice.UserID); !ok || user.CurrentChannelID != 1 {
		t.Errorf("expected the user to land in the default channel, got %+v", user)
	}
}
