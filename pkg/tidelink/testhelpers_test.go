package tidelink

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/keshon/tidelink/pkg/tidelink/driver"
	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

// fakeDriver records every request and serves canned responses, so player
// and manager behavior can be exercised without a live node.
type fakeDriver struct {
	mu         sync.Mutex
	host       driver.Host
	calls      []driver.Rx
	connects   int
	closes     int
	connectErr error
	respond    func(rx driver.Rx) (json.RawMessage, error)
}

func (d *fakeDriver) Init(host driver.Host, info driver.NodeInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.host = host
	return nil
}

func (d *fakeDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	return d.connectErr
}

func (d *fakeDriver) Request(ctx context.Context, rx driver.Rx) (json.RawMessage, error) {
	d.mu.Lock()
	d.calls = append(d.calls, rx)
	respond := d.respond
	d.mu.Unlock()
	if respond != nil {
		return respond(rx)
	}
	return nil, nil
}

func (d *fakeDriver) Close(withoutEmit bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDriver) Decode(encoded string) *protocol.Track { return nil }

func (d *fakeDriver) requests() []driver.Rx {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]driver.Rx, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *fakeDriver) countCalls(method, pathPart string) int {
	n := 0
	for _, rx := range d.requests() {
		if rx.Method == method && strings.Contains(rx.Path, pathPart) {
			n++
		}
	}
	return n
}

func (d *fakeDriver) connectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

type voiceSend struct {
	guildID   string
	channelID string
}

type fakeVoice struct {
	mu    sync.Mutex
	sends []voiceSend
	err   error
}

func (v *fakeVoice) SendVoiceUpdate(guildID, channelID string, selfDeaf, selfMute bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sends = append(v.sends, voiceSend{guildID: guildID, channelID: channelID})
	return v.err
}

func (v *fakeVoice) ShardID(guildID string) int { return 0 }

func (v *fakeVoice) sent() []voiceSend {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]voiceSend, len(v.sends))
	copy(out, v.sends)
	return out
}

func newTestManager(t *testing.T, fd *fakeDriver, fv *fakeVoice, mutate ...func(*Options)) *Manager {
	t.Helper()
	opts := Options{
		UserID:         "100",
		Node:           NodeOptions{Host: "localhost", ReconnectTries: 3, ReconnectInterval: time.Millisecond},
		Voice:          fv,
		Logger:         zerolog.Nop(),
		ConnectTimeout: 40 * time.Millisecond,
		driver:         fd,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	m, err := NewManager(opts)
	require.NoError(t, err)
	m.node.setSessionID("sess-1")
	m.node.setAvailable(true)
	return m
}

func newTestPlayer(t *testing.T, m *Manager) *Player {
	t.Helper()
	p, err := m.CreatePlayer(PlayerOptions{
		GuildID:        "g1",
		VoiceChannelID: "vc1",
		TextChannelID:  "tc1",
	})
	require.NoError(t, err)
	return p
}

func resolvedTrack(id string) *Track {
	return &Track{
		Encoded: "enc-" + id,
		Info: protocol.TrackInfo{
			Identifier: id,
			Title:      "title " + id,
			Author:     "author",
			Length:     180000,
			SourceName: "youtube",
		},
	}
}

func trackEnd(reason protocol.EndReason) *protocol.TrackEndPacket {
	return &protocol.TrackEndPacket{Reason: reason}
}

// searchResponse builds a loadtracks search payload for the fake driver.
func searchResponse(t *testing.T, tracks ...protocol.Track) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(tracks)
	require.NoError(t, err)
	raw, err := json.Marshal(protocol.LoadResult{LoadType: protocol.LoadTypeSearch, Data: data})
	require.NoError(t, err)
	return raw
}
