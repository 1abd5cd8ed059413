package tidelink

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

// EventType tags an emitted lifecycle event.
type EventType string

const (
	EventNodeConnect    EventType = "nodeConnect"
	EventNodeDisconnect EventType = "nodeDisconnect"
	EventNodeDown       EventType = "nodeDown"
	EventNodeError      EventType = "nodeError"
	EventPlayerCreate   EventType = "playerCreate"
	EventPlayerUpdate   EventType = "playerUpdate"
	EventPlayerDestroy  EventType = "playerDestroy"
	EventTrackStart     EventType = "trackStart"
	EventTrackEnd       EventType = "trackEnd"
	EventTrackError     EventType = "trackError"
	EventSocketClosed   EventType = "socketClosed"
	EventQueueEmpty     EventType = "queueEmpty"
	EventDebug          EventType = "debug"
)

// Event is a tagged message published on the manager's bus.
type Event interface {
	Type() EventType
}

type NodeConnectEvent struct {
	SessionID string
	Resumed   bool
}

type NodeDisconnectEvent struct {
	Code   int
	Reason string
}

// NodeDownEvent is fatal: reconnect attempts are exhausted and no further
// connects will be made.
type NodeDownEvent struct {
	Attempts int
}

type NodeErrorEvent struct {
	Err error
}

type PlayerCreateEvent struct {
	GuildID string
}

type PlayerUpdateEvent struct {
	GuildID string
	State   protocol.PlayerState
}

type PlayerDestroyEvent struct {
	GuildID string
}

type TrackStartEvent struct {
	GuildID string
	Track   *Track
}

type TrackEndEvent struct {
	GuildID string
	Track   *Track
	Reason  protocol.EndReason
}

// TrackErrorEvent covers both stuck and exception reports from the node.
// Exception is nil for stuck tracks; ThresholdMs is zero for exceptions.
type TrackErrorEvent struct {
	GuildID     string
	Track       *Track
	Exception   *protocol.TrackException
	ThresholdMs int64
}

type SocketClosedEvent struct {
	GuildID  string
	Code     int
	Reason   string
	ByRemote bool
}

// QueueEmptyEvent signals that playback stopped with nothing left to play.
type QueueEmptyEvent struct {
	GuildID string
}

type DebugEvent struct {
	Message string
}

func (NodeConnectEvent) Type() EventType    { return EventNodeConnect }
func (NodeDisconnectEvent) Type() EventType { return EventNodeDisconnect }
func (NodeDownEvent) Type() EventType       { return EventNodeDown }
func (NodeErrorEvent) Type() EventType      { return EventNodeError }
func (PlayerCreateEvent) Type() EventType   { return EventPlayerCreate }
func (PlayerUpdateEvent) Type() EventType   { return EventPlayerUpdate }
func (PlayerDestroyEvent) Type() EventType  { return EventPlayerDestroy }
func (TrackStartEvent) Type() EventType     { return EventTrackStart }
func (TrackEndEvent) Type() EventType       { return EventTrackEnd }
func (TrackErrorEvent) Type() EventType     { return EventTrackError }
func (SocketClosedEvent) Type() EventType   { return EventSocketClosed }
func (QueueEmptyEvent) Type() EventType     { return EventQueueEmpty }
func (DebugEvent) Type() EventType          { return EventDebug }

// bus fans events out to subscribers by tag. Publishing never blocks: a
// subscriber that cannot keep up loses the event, with a diagnostic log.
type bus struct {
	mu     sync.Mutex
	log    zerolog.Logger
	subs   []*subscription
	closed bool
}

type subscription struct {
	ch    chan Event
	types map[EventType]struct{} // empty = all types
}

func newBus(log zerolog.Logger) *bus {
	return &bus{log: log}
}

// subscribe returns a channel receiving events matching the given tags
// (all events when none are given) and a cancel function releasing it.
func (b *bus) subscribe(buffer int, types ...EventType) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	sub := &subscription{
		ch:    make(chan Event, buffer),
		types: make(map[EventType]struct{}, len(types)),
	}
	for _, t := range types {
		sub.types[t] = struct{}{}
	}

	b.mu.Lock()
	closed := b.closed
	if !closed {
		b.subs = append(b.subs, sub)
	}
	b.mu.Unlock()

	if closed {
		close(sub.ch)
		return sub.ch, func() {}
	}
	return sub.ch, func() { b.unsubscribe(sub) }
}

func (b *bus) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			close(s.ch)
			return
		}
	}
}

func (b *bus) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if len(sub.types) > 0 {
			if _, ok := sub.types[e.Type()]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- e:
		default:
			b.log.Debug().Str("event", string(e.Type())).Msg("event dropped, subscriber lagging")
		}
	}
}

func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
	b.subs = nil
}
