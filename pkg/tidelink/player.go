package tidelink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/tidelink/pkg/tidelink/driver"
	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

// ConnectionState is the player's relationship to the node session.
// It is deliberately decoupled from voice readiness: Connect marks the
// player Connected in its cleanup step even when the voice handshake
// failed, so VoiceStatus must be consulted for voice-level readiness.
type ConnectionState int

const (
	StateDestroyed ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDestroyed:
		return "destroyed"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// VoiceStatus is the voice-channel handshake state.
type VoiceStatus int

const (
	VoiceDisconnected VoiceStatus = iota
	VoiceConnecting
	VoiceConnected
)

// PlayerOptions keys a player to one guild/voice channel session.
type PlayerOptions struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	SelfDeaf       bool
	SelfMute       bool
	Volume         int
}

// Player interprets node events and user commands for one voice channel,
// drives its Queue, and emits lifecycle events on the manager's bus.
type Player struct {
	m     *Manager
	log   zerolog.Logger
	queue *Queue

	mu          sync.Mutex
	opts        PlayerOptions
	connState   ConnectionState
	voiceStatus VoiceStatus
	playing     bool
	paused      bool
	autoplay    bool
	loop        LoopMode
	position    int64
	timestamp   int64
	ping        int64
	voice       voiceServer
	connectWait chan voiceSignal
	destroyed   bool
}

func newPlayer(m *Manager, opts PlayerOptions) *Player {
	return &Player{
		m:         m,
		log:       m.log.With().Str("guild", opts.GuildID).Logger(),
		queue:     NewQueue(),
		opts:      opts,
		connState: StateDisconnected,
	}
}

// GuildID returns the guild this player is keyed by.
func (p *Player) GuildID() string { return p.opts.GuildID }

// Queue returns the player's queue.
func (p *Player) Queue() *Queue { return p.queue }

// Node returns the node this player is routed through.
func (p *Player) Node() *Node { return p.m.node }

// State returns the node-session connection state.
func (p *Player) State() ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connState
}

// VoiceState returns the voice handshake state.
func (p *Player) VoiceState() VoiceStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceStatus
}

// IsPlaying reports whether a track is actively playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// IsPaused reports whether playback is paused.
func (p *Player) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// IsAutoplay reports whether autoplay is enabled.
func (p *Player) IsAutoplay() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoplay
}

// Loop returns the loop mode.
func (p *Player) Loop() LoopMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// Position returns the last reported playback position in milliseconds.
func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Ping returns the node-to-voice-server latency in milliseconds.
func (p *Player) Ping() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ping
}

// VoiceChannelID returns the configured voice channel.
func (p *Player) VoiceChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.VoiceChannelID
}

// TextChannelID returns the configured text channel.
func (p *Player) TextChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.TextChannelID
}

// SetVoiceChannel changes the voice channel for the next Connect.
func (p *Player) SetVoiceChannel(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opts.VoiceChannelID = channelID
}

func (p *Player) guard() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return ErrPlayerDestroyed
	}
	return nil
}

func (p *Player) playerPath() string {
	return "/sessions/{sessionId}/players/" + p.opts.GuildID
}

// Connect joins the configured voice channel: it sends the voice join
// packet through the transport and suspends until the handshake signal
// arrives or the timeout fires. It is a no-op when already voice-connected
// or when no voice channel is set.
func (p *Player) Connect(ctx context.Context) error {
	if err := p.guard(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.voiceStatus == VoiceConnected || p.opts.VoiceChannelID == "" {
		p.mu.Unlock()
		return nil
	}
	p.voiceStatus = VoiceConnecting
	ch := make(chan voiceSignal, 1)
	p.connectWait = ch
	guildID := p.opts.GuildID
	channelID := p.opts.VoiceChannelID
	deaf, mute := p.opts.SelfDeaf, p.opts.SelfMute
	p.mu.Unlock()

	// Cleanup always marks the player connected to the node session and
	// releases the handshake listener; connection state tracks the node
	// session, not voice readiness.
	defer func() {
		p.mu.Lock()
		if !p.destroyed {
			p.connState = StateConnected
		}
		p.connectWait = nil
		p.mu.Unlock()
	}()

	p.setConnState(StateConnecting)
	if err := p.m.opts.Voice.SendVoiceUpdate(guildID, channelID, deaf, mute); err != nil {
		p.setVoiceStatus(VoiceDisconnected)
		return fmt.Errorf("voice join: %w", err)
	}

	timer := time.NewTimer(p.m.opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case sig := <-ch:
		switch sig {
		case signalSessionReady:
			p.setVoiceStatus(VoiceConnected)
			return nil
		case signalSessionIDMissing:
			p.setVoiceStatus(VoiceDisconnected)
			return ErrVoiceSessionMissing
		default:
			p.setVoiceStatus(VoiceDisconnected)
			return ErrVoiceEndpointMissing
		}
	case <-timer.C:
		p.setVoiceStatus(VoiceDisconnected)
		return ErrVoiceConnectTimeout
	case <-ctx.Done():
		p.setVoiceStatus(VoiceDisconnected)
		return ctx.Err()
	}
}

// Disconnect leaves the voice channel without destroying the player.
func (p *Player) Disconnect(ctx context.Context) error {
	if err := p.guard(); err != nil {
		return err
	}
	err := p.m.opts.Voice.SendVoiceUpdate(p.GuildID(), "", false, false)
	p.mu.Lock()
	p.voiceStatus = VoiceDisconnected
	p.connState = StateDisconnected
	p.playing = false
	p.paused = false
	p.voice = voiceServer{}
	p.mu.Unlock()
	return err
}

// Play pops the next queued track, resolving it first when needed, and
// reports it to the node. It is a no-op on an empty queue.
func (p *Player) Play(ctx context.Context) error {
	if err := p.guard(); err != nil {
		return err
	}

	track := p.queue.Next()
	if track == nil {
		return nil
	}

	if !track.Resolved() {
		if err := p.resolveInPlace(ctx, track); err != nil {
			p.log.Debug().Err(err).Str("query", track.Query).Msg("dropping unresolvable track")
			return p.Play(ctx)
		}
	}

	encoded := track.Encoded
	payload := protocol.UpdatePlayerPayload{
		Track: &protocol.UpdatePlayerTrack{Encoded: &encoded},
	}
	if v := p.Volume(); v > 0 {
		payload.Volume = &v
	}

	_, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodPatch,
		Path:   p.playerPath(),
		Query:  "noReplace=false",
		Body:   payload,
	})
	if err != nil {
		return fmt.Errorf("play %q: %w", track.Title(), err)
	}

	p.mu.Lock()
	p.playing = true
	p.paused = false
	p.position = 0
	p.mu.Unlock()
	return nil
}

// Volume returns the configured playback volume.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opts.Volume
}

// resolveInPlace turns an unresolved track into a playable one using the
// first result for its stored query.
func (p *Player) resolveInPlace(ctx context.Context, track *Track) error {
	res, err := p.Resolve(ctx, ResolveOptions{
		Query:     track.Query,
		Source:    track.Source,
		Requester: track.Requester,
	})
	if err != nil {
		return err
	}
	if len(res.Tracks) == 0 {
		return fmt.Errorf("no results for %q", track.Query)
	}
	track.Encoded = res.Tracks[0].Encoded
	track.Info = res.Tracks[0].Info
	return nil
}

// Pause sets the node-side paused flag and flips the playback flags.
func (p *Player) Pause(ctx context.Context, paused bool) error {
	if err := p.guard(); err != nil {
		return err
	}

	_, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodPatch,
		Path:   p.playerPath(),
		Body:   protocol.UpdatePlayerPayload{Paused: &paused},
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.paused = paused
	p.playing = !paused && p.queue.Current() != nil
	p.mu.Unlock()
	return nil
}

// Skip clears the current track on the node; the resulting track-end event
// advances the queue under the loop policy. No-op on an empty queue.
func (p *Player) Skip(ctx context.Context) error {
	if err := p.guard(); err != nil {
		return err
	}
	if p.queue.Len() == 0 {
		return nil
	}

	_, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodPatch,
		Path:   p.playerPath(),
		Body:   protocol.UpdatePlayerPayload{Track: &protocol.UpdatePlayerTrack{Encoded: nil}},
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.position = 0
	p.playing = false
	p.paused = true
	p.mu.Unlock()
	return nil
}

// Stop clears the queue and the current track.
func (p *Player) Stop(ctx context.Context) error {
	if err := p.guard(); err != nil {
		return err
	}
	p.queue.Clear()

	_, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodPatch,
		Path:   p.playerPath(),
		Body:   protocol.UpdatePlayerPayload{Track: &protocol.UpdatePlayerTrack{Encoded: nil}},
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.playing = false
	p.paused = false
	p.position = 0
	p.mu.Unlock()
	return nil
}

// SetLoop sets the loop mode, or cycles NONE -> TRACK -> QUEUE -> NONE
// when called without an argument. It returns the resulting mode.
func (p *Player) SetLoop(mode ...LoopMode) LoopMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(mode) > 0 {
		p.loop = mode[0]
	} else {
		p.loop = p.loop.next()
	}
	return p.loop
}

// SetAutoplay sets the autoplay flag, or inverts it when called without an
// argument. It returns the resulting value.
func (p *Player) SetAutoplay(enabled ...bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(enabled) > 0 {
		p.autoplay = enabled[0]
	} else {
		p.autoplay = !p.autoplay
	}
	return p.autoplay
}

// SetVolume sets the playback volume (0-1000).
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if err := p.guard(); err != nil {
		return err
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 1000 {
		volume = 1000
	}

	_, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodPatch,
		Path:   p.playerPath(),
		Body:   protocol.UpdatePlayerPayload{Volume: &volume},
	})
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.opts.Volume = volume
	p.mu.Unlock()
	return nil
}

// Seek moves the playback position.
func (p *Player) Seek(ctx context.Context, position time.Duration) error {
	if err := p.guard(); err != nil {
		return err
	}
	ms := position.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	_, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodPatch,
		Path:   p.playerPath(),
		Body:   protocol.UpdatePlayerPayload{Position: &ms},
	})
	return err
}

// ResolveOptions describes a search/load request.
type ResolveOptions struct {
	Query     string
	Source    string
	Requester string
}

// SearchResult classifies a load outcome with its tracks.
type SearchResult struct {
	LoadType     protocol.LoadType
	Tracks       []*Track
	PlaylistName string
	Exception    *protocol.TrackException
}

// Resolve runs a search/load request against the player's node and wraps
// the raw result into a typed response.
func (p *Player) Resolve(ctx context.Context, opts ResolveOptions) (*SearchResult, error) {
	if err := p.guard(); err != nil {
		return nil, err
	}

	identifier := opts.Query
	if !isURL(identifier) {
		identifier = searchPrefix(opts.Source) + ":" + identifier
	}

	raw, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodGet,
		Path:   "/loadtracks",
		Query:  "identifier=" + url.QueryEscape(identifier),
	})
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return &SearchResult{LoadType: protocol.LoadTypeEmpty}, nil
	}

	var lr protocol.LoadResult
	if err := json.Unmarshal(raw, &lr); err != nil {
		return nil, fmt.Errorf("loadtracks response: %w", err)
	}
	return p.wrapLoadResult(&lr, opts.Requester)
}

func (p *Player) wrapLoadResult(lr *protocol.LoadResult, requester string) (*SearchResult, error) {
	out := &SearchResult{LoadType: lr.LoadType}
	switch lr.LoadType {
	case protocol.LoadTypeTrack:
		t, err := lr.Track()
		if err != nil {
			return nil, err
		}
		out.Tracks = []*Track{NewTrack(*t, requester)}
	case protocol.LoadTypeSearch:
		ts, err := lr.Tracks()
		if err != nil {
			return nil, err
		}
		for _, t := range ts {
			out.Tracks = append(out.Tracks, NewTrack(t, requester))
		}
	case protocol.LoadTypePlaylist:
		pl, err := lr.Playlist()
		if err != nil {
			return nil, err
		}
		out.PlaylistName = pl.Info.Name
		for _, t := range pl.Tracks {
			out.Tracks = append(out.Tracks, NewTrack(t, requester))
		}
	case protocol.LoadTypeError:
		exc, err := lr.Exception()
		if err != nil {
			return nil, err
		}
		out.Exception = exc
	}
	return out, nil
}

// Destroy disconnects voice, clears the queue, removes the node-side
// player and unregisters this player. Every later command fails with
// ErrPlayerDestroyed.
func (p *Player) Destroy(ctx context.Context) error {
	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return ErrPlayerDestroyed
	}
	p.destroyed = true
	p.connState = StateDestroyed
	p.voiceStatus = VoiceDisconnected
	p.playing = false
	p.paused = false
	guildID := p.opts.GuildID
	p.mu.Unlock()

	if err := p.m.opts.Voice.SendVoiceUpdate(guildID, "", false, false); err != nil {
		p.log.Debug().Err(err).Msg("voice leave during destroy failed")
	}
	p.queue.Clear()

	if _, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodDelete,
		Path:   p.playerPath(),
	}); err != nil {
		p.log.Debug().Err(err).Msg("node-side player destroy failed")
	}

	p.m.bus.publish(PlayerDestroyEvent{GuildID: guildID})
	p.m.removePlayer(guildID)
	return nil
}

func (p *Player) setConnState(s ConnectionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.destroyed {
		p.connState = s
	}
}

func (p *Player) setVoiceStatus(s VoiceStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voiceStatus = s
}

func (p *Player) signal(sig voiceSignal) {
	p.mu.Lock()
	ch := p.connectWait
	p.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- sig:
	default:
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func searchPrefix(source string) string {
	switch strings.ToLower(source) {
	case "soundcloud", "sc", "scsearch":
		return "scsearch"
	case "youtubemusic", "ytmsearch", "ytmusic":
		return "ytmsearch"
	default:
		return "ytsearch"
	}
}
