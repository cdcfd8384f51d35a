package server

import (
	"testing"

	"github.com/ermau/gablarski/internal/protocol"
)

func validSourceRequest(name string) protocol.RequestSource {
	return protocol.RequestSource{
		Name:       name,
		Bitrate:    48000,
		Channels:   1,
		Frequency:  48000,
		FrameSize:  512,
		Complexity: 10,
	}
}

// requestSource registers a source for an already joined connection,
// consuming the success reply.
func (e *testEnv) requestSource(t *testing.T, conn *fakeConn, name string) protocol.AudioSource {
	t.Helper()
	e.server.Receive(conn, validSourceRequest(name))
	result := expect[protocol.SourceResultMessage](t, conn)
	if result.State != protocol.SourceSucceeded {
		t.Fatalf("source state = %v, expected success", result.State)
	}
	return result.Source
}

func TestHandleRequestSource(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
	})
	aliceConn, alice := env.connectAndJoin(t, "Alice")
	bobConn, _ := env.connectAndJoin(t, "Bob")
	expect[protocol.UserJoined](t, aliceConn)

	source := env.requestSource(t, aliceConn, "voice")
	if source.ID != 1 || source.OwnerID != alice.UserID {
		t.Errorf("unexpected source: %+v", source)
	}

	announced := expect[protocol.SourceResultMessage](t, bobConn)
	if announced.State != protocol.SourceNewSource || announced.Source.ID != source.ID {
		t.Errorf("unexpected announcement: %+v", announced)
	}
}

func TestHandleRequestSource_DefaultBitrate(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
	})
	conn, _ := env.connectAndJoin(t, "Alice")

	request := validSourceRequest("voice")
	request.Bitrate = 0
	env.server.Receive(conn, request)

	result := expect[protocol.SourceResultMessage](t, conn)
	if result.State != protocol.SourceSucceeded {
		t.Fatalf("source state = %v, expected success", result.State)
	}
	if result.Source.Bitrate != 48000 {
		t.Errorf("bitrate = %d, expected the server default of 48000", result.Source.Bitrate)
	}
}

func TestHandleRequestSource_Failures(t *testing.T) {
	tests := map[string]struct {
		setup    func(*testEnv)
		mutate   func(*protocol.RequestSource)
		expected protocol.SourceResultState
	}{
		"blank name": {
			mutate:   func(r *protocol.RequestSource) { r.Name = "  " },
			expected: protocol.SourceFailedInvalidName,
		},
		"no permission": {
			setup:    func(e *testEnv) { e.permissions.perms = map[int][]protocol.Permission{} },
			mutate:   func(r *protocol.RequestSource) {},
			expected: protocol.SourceFailedPermissions,
		},
		"too many channels": {
			mutate:   func(r *protocol.RequestSource) { r.Channels = 3 },
			expected: protocol.SourceFailedInvalidChannels,
		},
		"frequency out of range": {
			mutate:   func(r *protocol.RequestSource) { r.Frequency = 192000 },
			expected: protocol.SourceFailedInvalidFrequency,
		},
		"frame size out of range": {
			mutate:   func(r *protocol.RequestSource) { r.FrameSize = 32 },
			expected: protocol.SourceFailedInvalidFrameSize,
		},
		"complexity out of range": {
			mutate:   func(r *protocol.RequestSource) { r.Complexity = 11 },
			expected: protocol.SourceFailedInvalidComplexity,
		},
		"bitrate out of range": {
			mutate:   func(r *protocol.RequestSource) { r.Bitrate = 1000 },
			expected: protocol.SourceFailedInvalidBitrate,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, func(e *testEnv) {
				e.permissions.grant(0, 0, protocol.CanRequestSource)
				if tt.setup != nil {
					tt.setup(e)
				}
			})
			conn, _ := env.connectAndJoin(t, "Alice")

			request := validSourceRequest("voice")
			tt.mutate(&request)
			env.server.Receive(conn, request)

			result := expect[protocol.SourceResultMessage](t, conn)
			if result.State != tt.expected {
				t.Errorf("source state = %v, expected %v", result.State, tt.expected)
			}
		})
	}
}

func TestHandleRequestSource_DuplicateName(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
	})
	conn, _ := env.connectAndJoin(t, "Alice")
	env.requestSource(t, conn, "voice")

	env.server.Receive(conn, validSourceRequest("voice"))
	result := expect[protocol.SourceResultMessage](t, conn)
	if result.State != protocol.SourceFailedDuplicateSourceName {
		t.Errorf("source state = %v, expected a duplicate-name failure", result.State)
	}
}

func TestHandleMuteSource(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
		e.permissions.grant(0, 0, protocol.CanMuteAudioSource)
	})
	conn, _ := env.connectAndJoin(t, "Alice")
	source := env.requestSource(t, conn, "voice")

	env.server.Receive(conn, protocol.RequestMuteSource{SourceID: source.ID})

	muted := expect[protocol.SourceMuted](t, conn)
	if muted.SourceID != source.ID || !muted.IsMuted {
		t.Errorf("unexpected mute announcement: %+v", muted)
	}
}

func TestHandleAudioData_RelayToTargetUsers(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
		e.permissions.grant(0, 0, protocol.CanSendAudio)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, bob := env.connectAndJoin(t, "Bob")
	carolConn, _ := env.connectAndJoin(t, "Carol")
	expect[protocol.UserJoined](t, aliceConn)
	expect[protocol.UserJoined](t, aliceConn)
	expect[protocol.UserJoined](t, bobConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)
	expect[protocol.SourceResultMessage](t, carolConn)

	frames := [][]byte{{0x01, 0x02}, {0x03}}
	env.server.Receive(aliceConn, protocol.AudioData{
		SourceID:   source.ID,
		TargetType: protocol.TargetUsers,
		TargetIDs:  []int{bob.UserID},
		Frames:     frames,
	})

	relayed := expect[protocol.AudioDataRelay](t, bobConn)
	if relayed.SourceID != source.ID || len(relayed.Frames) != 2 {
		t.Errorf("unexpected relay: %+v", relayed)
	}
	carolConn.expectNone(t)
	aliceConn.expectNone(t)
}

func TestHandleAudioData_RelayToChannel(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
		e.permissions.grant(0, 0, protocol.CanSendAudio)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, _ := env.connectAndJoin(t, "Bob")
	expect[protocol.UserJoined](t, aliceConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)

	env.server.Receive(aliceConn, protocol.AudioData{
		SourceID:   source.ID,
		TargetType: protocol.TargetChannels,
		TargetIDs:  []int{1},
		Frames:     [][]byte{{0x01}},
	})

	expect[protocol.AudioDataRelay](t, bobConn)
	aliceConn.expectNone(t)
}

func TestHandleAudioData_MultipleTargetsNeedPermission(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
		e.permissions.grant(0, 0, protocol.CanSendAudio)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, bob := env.connectAndJoin(t, "Bob")
	carolConn, carol := env.connectAndJoin(t, "Carol")
	expect[protocol.UserJoined](t, aliceConn)
	expect[protocol.UserJoined](t, aliceConn)
	expect[protocol.UserJoined](t, bobConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)
	expect[protocol.SourceResultMessage](t, carolConn)

	env.server.Receive(aliceConn, protocol.AudioData{
		SourceID:   source.ID,
		TargetType: protocol.TargetUsers,
		TargetIDs:  []int{bob.UserID, carol.UserID},
		Frames:     [][]byte{{0x01}},
	})

	bobConn.expectNone(t)
	carolConn.expectNone(t)
}

func TestHandleAudioData_SilentDrops(t *testing.T) {
	tests := map[string]struct {
		prepare func(*testEnv, *fakeConn, protocol.UserInfo, protocol.AudioSource)
	}{
		"muted sender": {
			prepare: func(e *testEnv, conn *fakeConn, sender protocol.UserInfo, source protocol.AudioSource) {
				e.server.users.ToggleMute(sender.UserID)
			},
		},
		"muted source": {
			prepare: func(e *testEnv, conn *fakeConn, sender protocol.UserInfo, source protocol.AudioSource) {
				e.server.sources.ToggleMute(source.ID)
			},
		},
		"no send permission": {
			prepare: func(e *testEnv, conn *fakeConn, sender protocol.UserInfo, source protocol.AudioSource) {
				e.permissions.mu.Lock()
				e.permissions.perms = map[int][]protocol.Permission{}
				e.permissions.mu.Unlock()
				e.server.permissions.invalidate(0)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, func(e *testEnv) {
				e.permissions.grant(0, 0, protocol.CanRequestSource)
				e.permissions.grant(0, 0, protocol.CanSendAudio)
			})
			aliceConn, alice := env.connectAndJoin(t, "Alice")
			bobConn, bob := env.connectAndJoin(t, "Bob")
			expect[protocol.UserJoined](t, aliceConn)

			source := env.requestSource(t, aliceConn, "voice")
			expect[protocol.SourceResultMessage](t, bobConn)

			tt.prepare(env, aliceConn, alice, source)

			env.server.Receive(aliceConn, protocol.AudioData{
				SourceID:   source.ID,
				TargetType: protocol.TargetUsers,
				TargetIDs:  []int{bob.UserID},
				Frames:     [][]byte{{0x01}},
			})
			bobConn.expectNone(t)
		})
	}
}

func TestHandleAudioData_OwnershipRequired(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
		e.permissions.grant(0, 0, protocol.CanSendAudio)
	})
	aliceConn, alice := env.connectAndJoin(t, "Alice")
	bobConn, _ := env.connectAndJoin(t, "Bob")
	expect[protocol.UserJoined](t, aliceConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)

	// Bob cannot speak through Alice's source.
	env.server.Receive(bobConn, protocol.AudioData{
		SourceID:   source.ID,
		TargetType: protocol.TargetUsers,
		TargetIDs:  []int{alice.UserID},
		Frames:     [][]byte{{0x01}},
	})
	aliceConn.expectNone(t)
}

func TestHandleSourceStateChange(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
		e.permissions.grant(0, 0, protocol.CanSendAudio)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, bob := env.connectAndJoin(t, "Bob")
	expect[protocol.UserJoined](t, aliceConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)

	env.server.Receive(aliceConn, protocol.AudioSourceStateChange{
		SourceID:   source.ID,
		Starting:   true,
		TargetType: protocol.TargetUsers,
		TargetIDs:  []int{bob.UserID},
	})

	changed := expect[protocol.AudioSourceStateChanged](t, bobConn)
	if changed.SourceID != source.ID || !changed.Starting {
		t.Errorf("unexpected state change: %+v", changed)
	}
}

func TestHandleSourceStateChange_RequiresSendPermission(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, bob := env.connectAndJoin(t, "Bob")
	expect[protocol.UserJoined](t, aliceConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)

	env.server.Receive(aliceConn, protocol.AudioSourceStateChange{
		SourceID:   source.ID,
		Starting:   true,
		TargetType: protocol.TargetUsers,
		TargetIDs:  []int{bob.UserID},
	})
	bobConn.expectNone(t)
}

func TestHandleSourceStateChange_MultipleTargetsNeedPermission(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
		e.permissions.grant(0, 0, protocol.CanSendAudio)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, bob := env.connectAndJoin(t, "Bob")
	carolConn, carol := env.connectAndJoin(t, "Carol")
	expect[protocol.UserJoined](t, aliceConn)
	expect[protocol.UserJoined](t, aliceConn)
	expect[protocol.UserJoined](t, bobConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)
	expect[protocol.SourceResultMessage](t, carolConn)

	env.server.Receive(aliceConn, protocol.AudioSourceStateChange{
		SourceID:   source.ID,
		Starting:   true,
		TargetType: protocol.TargetUsers,
		TargetIDs:  []int{bob.UserID, carol.UserID},
	})
	bobConn.expectNone(t)
	carolConn.expectNone(t)
}

func TestHandleRemoveSource(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, _ := env.connectAndJoin(t, "Bob")
	expect[protocol.UserJoined](t, aliceConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)

	env.server.Receive(aliceConn, protocol.RemoveSource{SourceID: source.ID})

	for _, conn := range []*fakeConn{aliceConn, bobConn} {
		removed := expect[protocol.SourcesRemovedMessage](t, conn)
		if len(removed.Sources) != 1 || removed.Sources[0].ID != source.ID {
			t.Errorf("unexpected removal announcement: %+v", removed)
		}
	}
	if sources := env.server.sources.All(); len(sources) != 0 {
		t.Errorf("expected no sources to survive, found %d", len(sources))
	}
}

func TestHandleRemoveSource_OwnershipRequired(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, _ := env.connectAndJoin(t, "Bob")
	expect[protocol.UserJoined](t, aliceConn)

	source := env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)

	env.server.Receive(bobConn, protocol.RemoveSource{SourceID: source.ID})

	aliceConn.expectNone(t)
	if _, ok := env.server.sources.Get(source.ID); !ok {
		t.Error("source was removed by a non-owner")
	}
}

func TestDisconnectRemovesOwnedSources(t *testing.T) {
	env := newTestEnv(t, func(e *testEnv) {
		e.permissions.grant(0, 0, protocol.CanRequestSource)
	})
	aliceConn, _ := env.connectAndJoin(t, "Alice")
	bobConn, _ := env.connectAndJoin(t, "Bob")
	expect[protocol.UserJoined](t, aliceConn)

	env.requestSource(t, aliceConn, "voice")
	expect[protocol.SourceResultMessage](t, bobConn)
	env.requestSource(t, aliceConn, "music")
	expect[protocol.SourceResultMessage](t, bobConn)

	env.server.HandleDisconnect(aliceConn)

	removed := expect[protocol.SourcesRemovedMessage](t, bobConn)
	if len(removed.Sources) != 2 {
		t.Errorf("removed source count = %d, expected 2", len(removed.Sources))
	}
	expect[protocol.UserDisconnected](t, bobConn)

	if sources := env.server.sources.All(); len(sources) != 0 {
		t.Errorf("expected no sources to survive, found %d", len(sources))
	}
}
