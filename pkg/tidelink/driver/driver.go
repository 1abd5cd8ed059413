// Package driver implements the transport capability bound to one audio
// node: the control WebSocket, authenticated REST calls and local track
// decoding. Protocol variants (Lavalink v4, NodeLink, FrequenC) differ only
// in request shaping; the contract is uniform.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

var (
	// ErrNotRegistered is returned by Connect before Init was called or
	// when the host has no user identity yet.
	ErrNotRegistered = errors.New("driver: not registered with a manager/node pair")

	// ErrSessionNotReady is returned for session-scoped REST paths while
	// no session id has been assigned by the node.
	ErrSessionNotReady = errors.New("driver: node session is not ready")

	// ErrBadRequestDescriptor is returned when a request descriptor is
	// missing required fields.
	ErrBadRequestDescriptor = errors.New("driver: invalid request descriptor")
)

// Kind selects a protocol variant.
type Kind string

const (
	KindLavalinkV4 Kind = "lavalink-v4"
	KindNodeLink   Kind = "nodelink"
	KindFrequenC   Kind = "frequenc"
)

// ParseKind normalizes external variant aliases once at the boundary.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lavalink", "lavalink-v4", "lavalinkv4", "v4":
		return KindLavalinkV4, nil
	case "nodelink", "node-link":
		return KindNodeLink, nil
	case "frequenc":
		return KindFrequenC, nil
	default:
		return "", fmt.Errorf("driver: unknown kind %q", s)
	}
}

// NodeInfo is the static connection identity of one node. It is copied in
// at Init time; live state (the session id) is read through Host.
type NodeInfo struct {
	Host     string
	Port     int
	Secure   bool
	Password string
}

// Host is the session manager side of the driver contract. The driver
// reports raw socket lifecycle through it and reads session identity from
// it, without ever knowing about players.
type Host interface {
	UserID() string
	ClientName() string
	SessionID() string
	ResumeEnabled() bool

	HandleOpen()
	HandlePacket(p protocol.Packet)
	HandleError(err error)
	HandleClose(code int, reason string)
}

// Rx describes one REST request. Path and Method are required; everything
// else is an optional modifier. Paths containing {sessionId} are
// substituted with the live session id and fail with ErrSessionNotReady
// until one is known.
type Rx struct {
	Path    string
	Method  string
	Query   string
	Body    any
	Headers http.Header
}

func (r Rx) validate() error {
	if r.Path == "" || !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("%w: path %q", ErrBadRequestDescriptor, r.Path)
	}
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete:
		return nil
	default:
		return fmt.Errorf("%w: method %q", ErrBadRequestDescriptor, r.Method)
	}
}

// Driver is the uniform transport contract for one node.
type Driver interface {
	// Init binds the driver to a host/node pair. It performs no I/O and
	// is idempotent; later calls replace the binding.
	Init(host Host, info NodeInfo) error

	// Connect opens the control WebSocket and starts the read loop.
	Connect(ctx context.Context) error

	// Request issues one authenticated REST call. A nil payload with a
	// nil error means the call produced no usable data (204, or a soft
	// failure that was logged); callers must treat that as absence, not
	// as a crash.
	Request(ctx context.Context, rx Rx) (json.RawMessage, error)

	// Close tears down the socket and its listeners. withoutEmit
	// suppresses the close notification, for callers about to reconnect.
	Close(withoutEmit bool) error

	// Decode converts an encoded track string to metadata locally.
	// It returns nil on malformed input and never panics.
	Decode(encoded string) *protocol.Track
}

// New builds a driver of the given kind.
func New(kind Kind, log zerolog.Logger) (Driver, error) {
	switch kind {
	case KindLavalinkV4:
		return NewLavalinkV4(log), nil
	case KindNodeLink:
		return NewNodeLink(log), nil
	case KindFrequenC:
		return NewFrequenC(log), nil
	default:
		return nil, fmt.Errorf("driver: unknown kind %q", kind)
	}
}
