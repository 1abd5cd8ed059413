package tidelink

import (
	"sync"
	"time"

	"github.com/keshon/tidelink/pkg/tidelink/driver"
	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

// NodeOptions identifies one remote audio node and its reconnect policy.
type NodeOptions struct {
	Host     string
	Port     int
	Secure   bool
	Password string
	Driver   driver.Kind

	// Resume keeps the node-assigned session alive across reconnects so
	// server-side players survive short outages.
	Resume        bool
	ResumeTimeout time.Duration

	ReconnectTries       int
	ReconnectInterval    time.Duration
	ReconnectExponential bool
}

func (o *NodeOptions) fillDefaults() {
	if o.Port == 0 {
		o.Port = 2333
	}
	if o.Driver == "" {
		o.Driver = driver.KindLavalinkV4
	}
	if o.ReconnectTries == 0 {
		o.ReconnectTries = 5
	}
	if o.ReconnectInterval == 0 {
		o.ReconnectInterval = 5 * time.Second
	}
	if o.ResumeTimeout == 0 {
		o.ResumeTimeout = 60 * time.Second
	}
}

// Node is the client-side record of one remote audio node. It is owned
// exclusively by the Manager; players only ever read it.
type Node struct {
	opts NodeOptions

	mu             sync.RWMutex
	sessionID      string
	attempts       int
	registered     bool
	available      bool
	stats          protocol.StatsPacket
	disconnectedAt time.Time
}

func newNode(opts NodeOptions) *Node {
	opts.fillDefaults()
	return &Node{opts: opts}
}

// Options returns the node's static configuration.
func (n *Node) Options() NodeOptions {
	return n.opts
}

// SessionID returns the node-assigned session identifier, or "" before
// the ready packet arrives.
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

func (n *Node) setSessionID(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sessionID = id
}

// Ready reports whether the driver is registered and the node endpoints
// are resolvable.
func (n *Node) Ready() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.registered && n.opts.Host != ""
}

func (n *Node) setRegistered(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registered = v
}

// Available reports whether the node is connected or still worth
// reconnecting to. It turns false for good once attempts are exhausted.
func (n *Node) Available() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.available
}

func (n *Node) setAvailable(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.available = v
	if !v {
		return
	}
	n.attempts = 0
}

// bumpAttempt increments and returns the reconnect attempt counter.
func (n *Node) bumpAttempt() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	return n.attempts
}

// Attempts returns the current reconnect attempt counter.
func (n *Node) Attempts() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.attempts
}

func (n *Node) markDisconnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnectedAt = time.Now()
}

// withinResumeWindow reports whether the node's resume timeout has not yet
// elapsed since the last disconnect.
func (n *Node) withinResumeWindow() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.disconnectedAt.IsZero() {
		return true
	}
	return time.Since(n.disconnectedAt) <= n.opts.ResumeTimeout
}

// Stats returns the latest node telemetry.
func (n *Node) Stats() protocol.StatsPacket {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

func (n *Node) setStats(s protocol.StatsPacket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stats = s
}
