package driver

import "github.com/rs/zerolog"

// NodeLink speaks to a NodeLink server. NodeLink keeps the Lavalink v4
// wire format but does not hold server-side state across reconnects, so
// resume is disabled.
type NodeLink struct {
	*transport
}

// NewNodeLink creates an unbound NodeLink driver.
func NewNodeLink(log zerolog.Logger) *NodeLink {
	d := &NodeLink{}
	d.transport = newTransport(nodeLinkVariant{}, log)
	return d
}

type nodeLinkVariant struct{}

func (nodeLinkVariant) kind() Kind           { return KindNodeLink }
func (nodeLinkVariant) restPrefix() string   { return "/v4" }
func (nodeLinkVariant) socketPath() string   { return "/v4/websocket" }
func (nodeLinkVariant) supportsResume() bool { return false }
