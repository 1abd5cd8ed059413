package driver

import "github.com/rs/zerolog"

// LavalinkV4 speaks the Lavalink v4 REST+WebSocket API.
type LavalinkV4 struct {
	*transport
}

// NewLavalinkV4 creates an unbound Lavalink v4 driver.
func NewLavalinkV4(log zerolog.Logger) *LavalinkV4 {
	d := &LavalinkV4{}
	d.transport = newTransport(lavalinkV4Variant{}, log)
	return d
}

type lavalinkV4Variant struct{}

func (lavalinkV4Variant) kind() Kind           { return KindLavalinkV4 }
func (lavalinkV4Variant) restPrefix() string   { return "/v4" }
func (lavalinkV4Variant) socketPath() string   { return "/v4/websocket" }
func (lavalinkV4Variant) supportsResume() bool { return true }
