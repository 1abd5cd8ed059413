package tidelink

import (
	"context"
	"net/http"
	"time"

	"github.com/keshon/tidelink/pkg/tidelink/driver"
	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

// eventCtx bounds the REST calls issued from packet handlers. Handlers run
// on the socket read loop, so they must never hang on a dead node.
func eventCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// handleVoiceStateUpdate ingests the bot's own gateway voice state. An
// empty session id fails the pending handshake.
func (p *Player) handleVoiceStateUpdate(sessionID, channelID string) {
	if sessionID == "" {
		p.signal(signalSessionIDMissing)
		return
	}

	p.mu.Lock()
	p.voice.sessionID = sessionID
	if channelID == "" {
		// Moved out of the channel by the server side.
		p.voiceStatus = VoiceDisconnected
		p.voice = voiceServer{}
		p.mu.Unlock()
		return
	}
	p.opts.VoiceChannelID = channelID
	p.mu.Unlock()

	p.forwardVoiceServer()
}

// handleVoiceServerUpdate ingests the gateway voice server allocation. A
// null endpoint fails the pending handshake.
func (p *Player) handleVoiceServerUpdate(vsu protocol.VoiceServerUpdate) {
	if vsu.Endpoint == nil || *vsu.Endpoint == "" {
		p.signal(signalEndpointMissing)
		return
	}

	p.mu.Lock()
	p.voice.token = vsu.Token
	p.voice.endpoint = *vsu.Endpoint
	p.mu.Unlock()

	p.forwardVoiceServer()
}

// forwardVoiceServer pushes the completed handshake triple to the node and
// resolves the pending Connect wait.
func (p *Player) forwardVoiceServer() {
	p.mu.Lock()
	v := p.voice
	p.mu.Unlock()
	if !v.complete() {
		return
	}

	ctx, cancel := eventCtx()
	defer cancel()
	_, err := p.m.request(ctx, driver.Rx{
		Method: http.MethodPatch,
		Path:   p.playerPath(),
		Body: protocol.UpdatePlayerPayload{
			Voice: &protocol.VoiceStatePayload{
				Token:     v.token,
				Endpoint:  v.endpoint,
				SessionID: v.sessionID,
			},
		},
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("voice state handoff to node failed")
		return
	}
	p.signal(signalSessionReady)
}

// handlePlayerUpdate applies transport telemetry from the node.
func (p *Player) handlePlayerUpdate(state protocol.PlayerState) {
	p.mu.Lock()
	p.position = state.Position
	p.timestamp = state.Time
	p.ping = state.Ping
	p.mu.Unlock()
	p.m.bus.publish(PlayerUpdateEvent{GuildID: p.GuildID(), State: state})
}

// handleEvent is the per-player dispatcher for decoded node events.
func (p *Player) handleEvent(pkt protocol.EventPacket) {
	switch e := pkt.(type) {
	case *protocol.TrackStartPacket:
		p.mu.Lock()
		p.playing = true
		p.paused = false
		p.position = 0
		p.mu.Unlock()
		p.m.bus.publish(TrackStartEvent{GuildID: p.GuildID(), Track: p.queue.Current()})

	case *protocol.TrackEndPacket:
		p.handleTrackEnd(e)

	case *protocol.TrackStuckPacket:
		p.m.bus.publish(TrackErrorEvent{
			GuildID:     p.GuildID(),
			Track:       p.queue.Current(),
			ThresholdMs: e.ThresholdMs,
		})
		p.recoverSkip()

	case *protocol.TrackExceptionPacket:
		exc := e.Exception
		p.m.bus.publish(TrackErrorEvent{
			GuildID:   p.GuildID(),
			Track:     p.queue.Current(),
			Exception: &exc,
		})
		p.recoverSkip()

	case *protocol.WebSocketClosedPacket:
		p.handleSocketClosed(e)
	}
}

// handleTrackEnd archives the finished track and decides what plays next:
// replaced ends are informational, failure cleanups advance the queue
// directly, everything else goes through the loop/autoplay policy.
func (p *Player) handleTrackEnd(e *protocol.TrackEndPacket) {
	p.mu.Lock()
	p.playing = false
	p.paused = false
	loop := p.loop
	autoplay := p.autoplay
	p.mu.Unlock()

	p.queue.Archive()
	previous := p.queue.Previous()
	p.m.bus.publish(TrackEndEvent{GuildID: p.GuildID(), Track: previous, Reason: e.Reason})

	ctx, cancel := eventCtx()
	defer cancel()

	switch e.Reason {
	case protocol.EndReasonReplaced:
		return
	case protocol.EndReasonLoadFailed, protocol.EndReasonCleanup:
		// Broken tracks bypass the loop policy so they cannot wedge
		// the player in a replay cycle.
		p.advanceOrEmpty(ctx)
		return
	}

	switch loop {
	case LoopTrack:
		if previous != nil {
			p.queue.AddFront(previous)
		}
		p.playNext(ctx)
	case LoopQueue:
		if previous != nil {
			p.queue.Add(previous)
		}
		p.playNext(ctx)
	default:
		if autoplay {
			p.autoplayNext(ctx, previous)
			return
		}
		p.advanceOrEmpty(ctx)
	}
}

func (p *Player) advanceOrEmpty(ctx context.Context) {
	if p.queue.Len() == 0 {
		p.m.bus.publish(QueueEmptyEvent{GuildID: p.GuildID()})
		return
	}
	p.playNext(ctx)
}

func (p *Player) playNext(ctx context.Context) {
	if err := p.Play(ctx); err != nil {
		p.log.Warn().Err(err).Msg("advance after track end failed")
	}
}

// recoverSkip is the playback-error recovery path: never throws, always
// degrades to a skip.
func (p *Player) recoverSkip() {
	ctx, cancel := eventCtx()
	defer cancel()
	if err := p.Skip(ctx); err != nil {
		p.log.Warn().Err(err).Msg("skip after playback error failed")
	}
}

// handleSocketClosed reacts to the node losing its voice connection. A
// resumable close code means the voice server migrated and a fresh join
// restores it; everything else is surfaced and the player pauses.
func (p *Player) handleSocketClosed(e *protocol.WebSocketClosedPacket) {
	if protocol.ResumableVoiceClose(e.Code) {
		p.mu.Lock()
		guildID := p.opts.GuildID
		channelID := p.opts.VoiceChannelID
		deaf, mute := p.opts.SelfDeaf, p.opts.SelfMute
		p.mu.Unlock()
		if channelID != "" {
			if err := p.m.opts.Voice.SendVoiceUpdate(guildID, channelID, deaf, mute); err != nil {
				p.log.Warn().Err(err).Msg("voice rejoin after migration failed")
			}
		}
	}

	p.m.bus.publish(SocketClosedEvent{
		GuildID:  p.GuildID(),
		Code:     e.Code,
		Reason:   e.Reason,
		ByRemote: e.ByRemote,
	})

	ctx, cancel := eventCtx()
	defer cancel()
	if err := p.Pause(ctx, true); err != nil {
		p.log.Debug().Err(err).Msg("pause after socket close failed")
	}
}
