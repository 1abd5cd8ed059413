// Package protocol defines the wire types spoken between this client and a
// Lavalink-family audio node: inbound WebSocket packets tagged by op, the
// event sub-packets tagged by type, and the REST request/response payloads.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Op tags an inbound WebSocket packet.
type Op string

const (
	OpReady        Op = "ready"
	OpPlayerUpdate Op = "playerUpdate"
	OpStats        Op = "stats"
	OpEvent        Op = "event"
)

// Packet is any decoded inbound frame.
type Packet interface {
	Op() Op
}

// ReadyPacket confirms the WebSocket handshake and assigns the session id
// used for all session-scoped REST paths.
type ReadyPacket struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

func (ReadyPacket) Op() Op { return OpReady }

// PlayerState is the periodic transport telemetry inside a playerUpdate.
type PlayerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int64 `json:"ping"`
}

// PlayerUpdatePacket reports position/ping for one guild's player.
type PlayerUpdatePacket struct {
	GuildID string      `json:"guildId"`
	State   PlayerState `json:"state"`
}

func (PlayerUpdatePacket) Op() Op { return OpPlayerUpdate }

// StatsPacket carries node-level telemetry. It is never routed to players.
type StatsPacket struct {
	Players        int    `json:"players"`
	PlayingPlayers int    `json:"playingPlayers"`
	Uptime         int64  `json:"uptime"`
	Memory         Memory `json:"memory"`
	CPU            CPU    `json:"cpu"`
	FrameStats     *struct {
		Sent    int64 `json:"sent"`
		Nulled  int64 `json:"nulled"`
		Deficit int64 `json:"deficit"`
	} `json:"frameStats"`
}

type Memory struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

func (StatsPacket) Op() Op { return OpStats }

// RawPacket preserves frames with an op this client does not know about.
type RawPacket struct {
	RawOp Op              `json:"op"`
	Data  json.RawMessage `json:"-"`
}

func (p RawPacket) Op() Op { return p.RawOp }

// EventType tags an event packet.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
)

// EventPacket is an op=event frame addressed to a single guild's player.
type EventPacket interface {
	Packet
	EventType() EventType
	EventGuildID() string
}

type eventBase struct {
	Type    EventType `json:"type"`
	GuildID string    `json:"guildId"`
}

func (eventBase) Op() Op                 { return OpEvent }
func (e eventBase) EventType() EventType { return e.Type }
func (e eventBase) EventGuildID() string { return e.GuildID }

// EndReason explains why a track stopped playing.
type EndReason string

const (
	EndReasonFinished   EndReason = "finished"
	EndReasonLoadFailed EndReason = "loadFailed"
	EndReasonStopped    EndReason = "stopped"
	EndReasonReplaced   EndReason = "replaced"
	EndReasonCleanup    EndReason = "cleanup"
)

// MayStartNext reports whether the node expects the client to start a
// follow-up track for this reason.
func (r EndReason) MayStartNext() bool {
	return r == EndReasonFinished || r == EndReasonLoadFailed
}

type TrackStartPacket struct {
	eventBase
	Track Track `json:"track"`
}

type TrackEndPacket struct {
	eventBase
	Track  Track     `json:"track"`
	Reason EndReason `json:"reason"`
}

type TrackExceptionPacket struct {
	eventBase
	Track     Track          `json:"track"`
	Exception TrackException `json:"exception"`
}

type TrackStuckPacket struct {
	eventBase
	Track       Track `json:"track"`
	ThresholdMs int64 `json:"thresholdMs"`
}

type WebSocketClosedPacket struct {
	eventBase
	Code     int    `json:"code"`
	Reason   string `json:"reason"`
	ByRemote bool   `json:"byRemote"`
}

// ResumableVoiceClose reports whether a voice gateway close code can be
// recovered by re-sending the voice join packet. 4015 is a voice server
// crash, 4009 a session timeout; both allow a fresh handshake. 4004, 4006
// and 4014 mean the session is gone for good.
func ResumableVoiceClose(code int) bool {
	return code == 4015 || code == 4009
}

// DecodePacket turns one raw WebSocket frame into a typed packet. Frames
// with an unknown op come back as RawPacket; malformed JSON is an error.
func DecodePacket(data []byte) (Packet, error) {
	var probe struct {
		Op   Op        `json:"op"`
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed packet: %w", err)
	}

	switch probe.Op {
	case OpReady:
		var p ReadyPacket
		return &p, json.Unmarshal(data, &p)
	case OpPlayerUpdate:
		var p PlayerUpdatePacket
		return &p, json.Unmarshal(data, &p)
	case OpStats:
		var p StatsPacket
		return &p, json.Unmarshal(data, &p)
	case OpEvent:
		return decodeEvent(probe.Type, data)
	default:
		return &RawPacket{RawOp: probe.Op, Data: append(json.RawMessage(nil), data...)}, nil
	}
}

func decodeEvent(t EventType, data []byte) (Packet, error) {
	switch t {
	case EventTrackStart:
		var p TrackStartPacket
		return &p, json.Unmarshal(data, &p)
	case EventTrackEnd:
		var p TrackEndPacket
		return &p, json.Unmarshal(data, &p)
	case EventTrackException:
		var p TrackExceptionPacket
		return &p, json.Unmarshal(data, &p)
	case EventTrackStuck:
		var p TrackStuckPacket
		return &p, json.Unmarshal(data, &p)
	case EventWebSocketClosed:
		var p WebSocketClosedPacket
		return &p, json.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}
