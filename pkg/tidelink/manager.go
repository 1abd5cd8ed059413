// Package tidelink is a client for Lavalink-family audio nodes. A Manager
// owns the connection to one node and routes its packets to per-guild
// Players; Players drive an ordered Queue with loop and autoplay policies
// and surface lifecycle events on a subscription bus.
package tidelink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/tidelink/pkg/backoff"
	"github.com/keshon/tidelink/pkg/tidelink/driver"
	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

// AutoplayFunc is a user-supplied autoplay resolver. Returning true means
// it handled the follow-up; false or an error falls through to the
// built-in related-track lookup.
type AutoplayFunc func(p *Player, previous *Track) (bool, error)

// Options configures a Manager.
type Options struct {
	// UserID is the bot user id, required for the node handshake.
	UserID string

	// ClientName is sent as Client-Name/User-Agent. Defaults to the
	// library identity.
	ClientName string

	Node  NodeOptions
	Voice VoiceTransport

	Logger zerolog.Logger

	// ConnectTimeout bounds the voice handshake wait in Player.Connect.
	ConnectTimeout time.Duration

	// Autoplay, when set, is consulted before the built-in related-track
	// lookup.
	Autoplay AutoplayFunc

	// driver overrides the transport, for tests.
	driver driver.Driver
}

// Manager owns one Node and its driver, applies the reconnect policy, and
// fans decoded packets out to the owning players by guild id.
type Manager struct {
	opts Options
	log  zerolog.Logger

	node *Node
	drv  driver.Driver
	bus  *bus

	mu           sync.RWMutex
	players      map[string]*Player
	closed       bool
	reconnecting bool

	done chan struct{}
}

// NewManager validates the options, builds the driver for the configured
// protocol variant and binds it. It performs no I/O; call Connect next.
func NewManager(opts Options) (*Manager, error) {
	if opts.UserID == "" {
		return nil, errors.New("tidelink: UserID is required")
	}
	if opts.Node.Host == "" {
		return nil, errors.New("tidelink: Node.Host is required")
	}
	if opts.Voice == nil {
		return nil, errors.New("tidelink: Voice transport is required")
	}
	if opts.ClientName == "" {
		opts.ClientName = "tidelink/1"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 15 * time.Second
	}

	node := newNode(opts.Node)
	log := opts.Logger.With().Str("component", "tidelink").Str("node", node.opts.Host).Logger()

	drv := opts.driver
	if drv == nil {
		var err error
		drv, err = driver.New(node.opts.Driver, log)
		if err != nil {
			return nil, err
		}
	}

	m := &Manager{
		opts:    opts,
		log:     log,
		node:    node,
		drv:     drv,
		bus:     newBus(log),
		players: make(map[string]*Player),
		done:    make(chan struct{}),
	}

	if err := drv.Init(m, driver.NodeInfo{
		Host:     node.opts.Host,
		Port:     node.opts.Port,
		Secure:   node.opts.Secure,
		Password: node.opts.Password,
	}); err != nil {
		return nil, err
	}
	node.setRegistered(true)
	return m, nil
}

// Connect opens the control WebSocket to the node.
func (m *Manager) Connect(ctx context.Context) error {
	if m.isClosed() {
		return ErrManagerClosed
	}
	if err := m.drv.Connect(ctx); err != nil {
		return err
	}
	m.node.setAvailable(true)
	return nil
}

// Node returns the managed node record.
func (m *Manager) Node() *Node {
	return m.node
}

// Subscribe returns a channel of events matching the given tags (all
// events when none are given) plus a cancel function.
func (m *Manager) Subscribe(buffer int, types ...EventType) (<-chan Event, func()) {
	return m.bus.subscribe(buffer, types...)
}

// CreatePlayer returns the player for the guild, creating it on first use.
func (m *Manager) CreatePlayer(opts PlayerOptions) (*Player, error) {
	if opts.GuildID == "" {
		return nil, errors.New("tidelink: GuildID is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if p, ok := m.players[opts.GuildID]; ok {
		return p, nil
	}
	p := newPlayer(m, opts)
	m.players[opts.GuildID] = p
	m.bus.publish(PlayerCreateEvent{GuildID: opts.GuildID})
	return p, nil
}

// Player returns the player owning the guild, if any.
func (m *Manager) Player(guildID string) (*Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[guildID]
	return p, ok
}

// Players returns a snapshot of all live players.
func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	return out
}

func (m *Manager) removePlayer(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.players, guildID)
}

// HandleVoiceServerUpdate forwards a gateway VOICE_SERVER_UPDATE to the
// owning player.
func (m *Manager) HandleVoiceServerUpdate(vsu protocol.VoiceServerUpdate) {
	if p, ok := m.Player(vsu.GuildID); ok {
		p.handleVoiceServerUpdate(vsu)
	}
}

// HandleVoiceStateUpdate forwards the bot's own gateway VOICE_STATE_UPDATE
// to the owning player. Calls for other users are ignored.
func (m *Manager) HandleVoiceStateUpdate(guildID, userID, sessionID, channelID string) {
	if userID != m.opts.UserID {
		return
	}
	if p, ok := m.Player(guildID); ok {
		p.handleVoiceStateUpdate(sessionID, channelID)
	}
}

// Close tears down every player, the driver and the event bus.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	m.closed = true
	players := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		players = append(players, p)
	}
	m.mu.Unlock()

	close(m.done)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, p := range players {
		if err := p.Destroy(ctx); err != nil && !errors.Is(err, ErrPlayerDestroyed) {
			m.log.Warn().Err(err).Str("guild", p.GuildID()).Msg("player teardown failed")
		}
	}
	err := m.drv.Close(true)
	m.bus.close()
	return err
}

func (m *Manager) isClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// UserID implements driver.Host.
func (m *Manager) UserID() string { return m.opts.UserID }

// ClientName implements driver.Host.
func (m *Manager) ClientName() string { return m.opts.ClientName }

// SessionID implements driver.Host.
func (m *Manager) SessionID() string { return m.node.SessionID() }

// ResumeEnabled implements driver.Host: resume only while the node's
// resume window has not elapsed.
func (m *Manager) ResumeEnabled() bool {
	return m.node.opts.Resume && m.node.withinResumeWindow()
}

// HandleOpen implements driver.Host.
func (m *Manager) HandleOpen() {
	m.log.Info().Msg("node websocket open")
}

// HandleError implements driver.Host.
func (m *Manager) HandleError(err error) {
	m.log.Warn().Err(err).Msg("node socket error")
	m.bus.publish(NodeErrorEvent{Err: err})
}

// HandlePacket implements driver.Host: stats stay on the node, everything
// guild-tagged is routed to its player, packets for unknown guilds are
// dropped with a trace.
func (m *Manager) HandlePacket(pkt protocol.Packet) {
	switch p := pkt.(type) {
	case *protocol.ReadyPacket:
		m.handleReady(p)
	case *protocol.StatsPacket:
		m.node.setStats(*p)
	case *protocol.PlayerUpdatePacket:
		player, ok := m.Player(p.GuildID)
		if !ok {
			m.log.Debug().Str("guild", p.GuildID).Msg("playerUpdate for unknown player dropped")
			return
		}
		player.handlePlayerUpdate(p.State)
	case protocol.EventPacket:
		player, ok := m.Player(p.EventGuildID())
		if !ok {
			m.log.Debug().
				Str("guild", p.EventGuildID()).
				Str("type", string(p.EventType())).
				Msg("event for unknown player dropped")
			return
		}
		player.handleEvent(p)
	default:
		m.log.Debug().Str("op", string(pkt.Op())).Msg("unhandled packet op")
	}
}

func (m *Manager) handleReady(p *protocol.ReadyPacket) {
	m.node.setSessionID(p.SessionID)
	m.node.setAvailable(true)
	m.log.Info().Str("session", p.SessionID).Bool("resumed", p.Resumed).Msg("node session ready")

	if m.node.opts.Resume {
		timeout := int(m.node.opts.ResumeTimeout / time.Second)
		resuming := true
		_, err := m.drv.Request(context.Background(), driver.Rx{
			Method: http.MethodPatch,
			Path:   "/sessions/{sessionId}",
			Body:   protocol.SessionUpdatePayload{Resuming: &resuming, Timeout: &timeout},
		})
		if err != nil {
			m.log.Warn().Err(err).Msg("session resume configuration failed")
		}
	}

	m.bus.publish(NodeConnectEvent{SessionID: p.SessionID, Resumed: p.Resumed})
}

// HandleClose implements driver.Host. Unexpected closes feed the
// reconnect policy; exhaustion marks the node permanently unavailable.
func (m *Manager) HandleClose(code int, reason string) {
	m.node.markDisconnected()
	m.bus.publish(NodeDisconnectEvent{Code: code, Reason: reason})
	m.log.Warn().Int("code", code).Str("reason", reason).Msg("node websocket closed")

	if m.isClosed() {
		return
	}

	m.mu.Lock()
	if m.reconnecting {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	m.mu.Unlock()

	go m.reconnect()
}

// reconnect retries the node connection under the configured policy,
// keeping the stored session id while the resume window holds.
func (m *Manager) reconnect() {
	defer func() {
		m.mu.Lock()
		m.reconnecting = false
		m.mu.Unlock()
	}()

	pol := backoff.Policy{
		MaxAttempts: m.node.opts.ReconnectTries,
		Initial:     m.node.opts.ReconnectInterval,
		Max:         10 * m.node.opts.ReconnectInterval,
		Jitter:      true,
	}
	if m.node.opts.ReconnectExponential {
		pol.Multiplier = 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		attempt := m.node.bumpAttempt()
		if pol.Exhausted(attempt) {
			m.node.setAvailable(false)
			m.log.Error().Int("attempts", attempt-1).Msg("reconnect attempts exhausted, node is down")
			m.bus.publish(NodeDownEvent{Attempts: attempt - 1})
			return
		}

		if err := pol.Sleep(ctx, attempt); err != nil {
			return
		}
		if m.isClosed() {
			return
		}

		if !m.ResumeEnabled() {
			m.node.setSessionID("")
		}

		m.log.Info().Int("attempt", attempt).Msg("reconnecting to node")
		if err := m.drv.Connect(ctx); err != nil {
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("reconnect failed")
			continue
		}
		m.node.setAvailable(true)
		return
	}
}

// request forwards a REST call through the driver after checking node
// readiness.
func (m *Manager) request(ctx context.Context, rx driver.Rx) ([]byte, error) {
	if m.isClosed() {
		return nil, ErrManagerClosed
	}
	if !m.node.Ready() {
		return nil, fmt.Errorf("%w: driver not registered", ErrNodeNotAvailable)
	}
	if !m.node.Available() {
		return nil, ErrNodeNotAvailable
	}
	return m.drv.Request(ctx, rx)
}
