package tidelink

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

func TestNewManagerValidation(t *testing.T) {
	fv := &fakeVoice{}

	_, err := NewManager(Options{Node: NodeOptions{Host: "h"}, Voice: fv})
	assert.Error(t, err)

	_, err = NewManager(Options{UserID: "100", Voice: fv})
	assert.Error(t, err)

	_, err = NewManager(Options{UserID: "100", Node: NodeOptions{Host: "h"}})
	assert.Error(t, err)

	m, err := NewManager(Options{
		UserID: "100",
		Node:   NodeOptions{Host: "h"},
		Voice:  fv,
		Logger: zerolog.Nop(),
		driver: &fakeDriver{},
	})
	require.NoError(t, err)
	assert.True(t, m.Node().Ready())
}

func TestCreatePlayerIsIdempotentPerGuild(t *testing.T) {
	m := newTestManager(t, &fakeDriver{}, &fakeVoice{})

	events, cancel := m.Subscribe(4, EventPlayerCreate)
	defer cancel()

	p1, err := m.CreatePlayer(PlayerOptions{GuildID: "g1"})
	require.NoError(t, err)
	p2, err := m.CreatePlayer(PlayerOptions{GuildID: "g1"})
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	<-events
	select {
	case e := <-events:
		t.Fatalf("unexpected second create event: %#v", e)
	default:
	}

	_, err = m.CreatePlayer(PlayerOptions{})
	assert.Error(t, err)
}

func TestReadyPacketConfiguresResume(t *testing.T) {
	fd := &fakeDriver{}
	m := newTestManager(t, fd, &fakeVoice{}, func(o *Options) {
		o.Node.Resume = true
		o.Node.ResumeTimeout = 30 * time.Second
	})

	events, cancel := m.Subscribe(4, EventNodeConnect)
	defer cancel()

	m.HandlePacket(&protocol.ReadyPacket{SessionID: "abc", Resumed: true})

	assert.Equal(t, "abc", m.Node().SessionID())
	assert.True(t, m.Node().Available())

	reqs := fd.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPatch, reqs[0].Method)
	assert.Equal(t, "/sessions/{sessionId}", reqs[0].Path)
	body, ok := reqs[0].Body.(protocol.SessionUpdatePayload)
	require.True(t, ok)
	require.NotNil(t, body.Resuming)
	assert.True(t, *body.Resuming)
	require.NotNil(t, body.Timeout)
	assert.Equal(t, 30, *body.Timeout)

	select {
	case e := <-events:
		nc, ok := e.(NodeConnectEvent)
		require.True(t, ok)
		assert.Equal(t, "abc", nc.SessionID)
		assert.True(t, nc.Resumed)
	case <-time.After(time.Second):
		t.Fatal("no nodeConnect event")
	}
}

func TestReadyPacketWithoutResumeSkipsSessionPatch(t *testing.T) {
	fd := &fakeDriver{}
	m := newTestManager(t, fd, &fakeVoice{})

	m.HandlePacket(&protocol.ReadyPacket{SessionID: "abc"})

	assert.Equal(t, "abc", m.Node().SessionID())
	assert.Empty(t, fd.requests())
}

func TestStatsPacketStaysOnNode(t *testing.T) {
	m := newTestManager(t, &fakeDriver{}, &fakeVoice{})

	m.HandlePacket(&protocol.StatsPacket{Players: 3, PlayingPlayers: 2, Uptime: 1000})

	stats := m.Node().Stats()
	assert.Equal(t, 3, stats.Players)
	assert.Equal(t, 2, stats.PlayingPlayers)
}

func TestPlayerUpdateRoutedByGuild(t *testing.T) {
	m := newTestManager(t, &fakeDriver{}, &fakeVoice{})
	p := newTestPlayer(t, m)

	m.HandlePacket(&protocol.PlayerUpdatePacket{
		GuildID: "g1",
		State:   protocol.PlayerState{Position: 42000, Ping: 7, Connected: true},
	})

	assert.EqualValues(t, 42000, p.Position())
	assert.EqualValues(t, 7, p.Ping())
}

func TestEventPacketRoutedByGuild(t *testing.T) {
	m := newTestManager(t, &fakeDriver{}, &fakeVoice{})
	p := newTestPlayer(t, m)
	p.Queue().Add(resolvedTrack("a"))
	require.NoError(t, p.Play(context.Background()))

	pkt, err := protocol.DecodePacket([]byte(`{"op":"event","type":"TrackStartEvent","guildId":"g1","track":{"encoded":"enc-a"}}`))
	require.NoError(t, err)
	m.HandlePacket(pkt)

	assert.True(t, p.IsPlaying())
}

func TestEventForUnknownGuildIsDropped(t *testing.T) {
	m := newTestManager(t, &fakeDriver{}, &fakeVoice{})

	pkt, err := protocol.DecodePacket([]byte(`{"op":"event","type":"TrackEndEvent","guildId":"nope","reason":"finished"}`))
	require.NoError(t, err)
	require.NotPanics(t, func() { m.HandlePacket(pkt) })
}

func TestReconnectExhaustionMarksNodeDown(t *testing.T) {
	fd := &fakeDriver{connectErr: context.DeadlineExceeded}
	m := newTestManager(t, fd, &fakeVoice{})
	p := newTestPlayer(t, m)

	events, cancel := m.Subscribe(4, EventNodeDown)
	defer cancel()

	m.HandleClose(1006, "abnormal closure")

	select {
	case e := <-events:
		down, ok := e.(NodeDownEvent)
		require.True(t, ok)
		assert.Equal(t, 3, down.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("no nodeDown event")
	}

	assert.Equal(t, 3, fd.connectCount())
	assert.False(t, m.Node().Available())

	// Down means down: no further attempts fire on their own.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, fd.connectCount())

	assert.ErrorIs(t, p.Pause(context.Background(), true), ErrNodeNotAvailable)
}

func TestReconnectSuccessRestoresAvailability(t *testing.T) {
	fd := &fakeDriver{}
	m := newTestManager(t, fd, &fakeVoice{})

	events, cancel := m.Subscribe(4, EventNodeDisconnect)
	defer cancel()

	m.HandleClose(4000, "node restarting")

	select {
	case e := <-events:
		dc, ok := e.(NodeDisconnectEvent)
		require.True(t, ok)
		assert.Equal(t, 4000, dc.Code)
	case <-time.After(time.Second):
		t.Fatal("no nodeDisconnect event")
	}

	require.Eventually(t, func() bool {
		return m.Node().Available() && fd.connectCount() == 1
	}, 2*time.Second, time.Millisecond)
	assert.Zero(t, m.Node().Attempts())
}

func TestSessionClearedOutsideResumeWindow(t *testing.T) {
	fd := &fakeDriver{}
	m := newTestManager(t, fd, &fakeVoice{})

	// Resume is off, so any reconnect drops the stale session id.
	m.HandleClose(1006, "gone")
	require.Eventually(t, func() bool {
		return fd.connectCount() == 1
	}, 2*time.Second, time.Millisecond)

	assert.Empty(t, m.Node().SessionID())
}

func TestCloseDestroysPlayersAndStopsReconnect(t *testing.T) {
	fd := &fakeDriver{}
	m := newTestManager(t, fd, &fakeVoice{})
	p := newTestPlayer(t, m)

	require.NoError(t, m.Close())
	assert.Equal(t, StateDestroyed, p.State())
	assert.Equal(t, 1, fd.closes)

	assert.ErrorIs(t, m.Close(), ErrManagerClosed)
	_, err := m.CreatePlayer(PlayerOptions{GuildID: "g2"})
	assert.ErrorIs(t, err, ErrManagerClosed)
	assert.ErrorIs(t, m.Connect(context.Background()), ErrManagerClosed)

	// A close arriving after shutdown must not spawn a reconnect loop.
	m.HandleClose(1006, "late")
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, fd.connectCount())
}

func TestRequestRequiresRegisteredAvailableNode(t *testing.T) {
	fd := &fakeDriver{}
	m := newTestManager(t, fd, &fakeVoice{})
	p := newTestPlayer(t, m)
	ctx := context.Background()

	m.node.setAvailable(false)
	assert.ErrorIs(t, p.Pause(ctx, true), ErrNodeNotAvailable)

	m.node.setAvailable(true)
	m.node.setRegistered(false)
	assert.ErrorIs(t, p.Pause(ctx, true), ErrNodeNotAvailable)

	m.node.setRegistered(true)
	assert.NoError(t, p.Pause(ctx, true))
}
