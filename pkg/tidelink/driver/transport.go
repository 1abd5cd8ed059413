package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/keshon/tidelink/pkg/backoff"
	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

// versionPath is probed outside the versioned REST prefix.
const versionPath = "/version"

// variant is the per-protocol shaping a concrete driver provides on top of
// the shared transport.
type variant interface {
	kind() Kind
	restPrefix() string
	socketPath() string
	supportsResume() bool
}

// transport is the shared driver implementation. Concrete drivers embed it
// and supply a variant.
type transport struct {
	variant variant
	log     zerolog.Logger

	http  *http.Client
	pacer *backoff.Pacer

	mu         sync.Mutex
	host       Host
	info       NodeInfo
	registered bool
	conn       *websocket.Conn
	suppress   bool // set by Close(withoutEmit=true) for the live conn
}

func newTransport(v variant, log zerolog.Logger) *transport {
	return &transport{
		variant: v,
		log:     log.With().Str("component", "driver").Str("kind", string(v.kind())).Logger(),
		http:    &http.Client{Timeout: 15 * time.Second},
		pacer:   backoff.NewPacer(10, 5),
	}
}

func (t *transport) Init(host Host, info NodeInfo) error {
	if host == nil || info.Host == "" {
		return fmt.Errorf("%w: missing host or node address", ErrNotRegistered)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.host = host
	t.info = info
	t.registered = true
	return nil
}

// Connect opens the control WebSocket. If the host still holds a session
// id and resume is enabled, the Session-Id header is attached so the node
// can restore queued state from its resume window.
func (t *transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	host := t.host
	info := t.info
	registered := t.registered
	t.mu.Unlock()

	if !registered || host.UserID() == "" {
		return ErrNotRegistered
	}

	scheme := "ws"
	if info.Secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   info.Host + ":" + strconv.Itoa(info.Port),
		Path:   t.variant.socketPath(),
	}

	hdr := t.headers(host)
	hdr.Set("User-Id", host.UserID())
	if t.variant.supportsResume() && host.ResumeEnabled() {
		if sid := host.SessionID(); sid != "" {
			hdr.Set("Session-Id", sid)
		}
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("driver: websocket dial %s failed (status %d): %w", u.String(), resp.StatusCode, err)
		}
		return fmt.Errorf("driver: websocket dial %s failed: %w", u.String(), err)
	}

	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
	}
	t.conn = conn
	t.suppress = false
	t.mu.Unlock()

	t.log.Debug().Str("url", u.String()).Msg("control websocket open")
	host.HandleOpen()
	go t.readLoop(conn, host)
	return nil
}

// readLoop decodes raw frames into typed packets for the host. It exits on
// the first read error, reporting the close unless it was suppressed.
func (t *transport) readLoop(conn *websocket.Conn, host Host) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)

			t.mu.Lock()
			current := t.conn == conn
			suppressed := t.suppress && current
			if current {
				t.conn = nil
			}
			t.mu.Unlock()

			if !current || suppressed {
				return
			}
			t.log.Debug().Int("code", code).Str("reason", reason).Msg("control websocket closed")
			host.HandleClose(code, reason)
			return
		}

		pkt, err := protocol.DecodePacket(msg)
		if err != nil {
			t.log.Warn().Err(err).Msg("dropping undecodable frame")
			host.HandleError(err)
			continue
		}
		host.HandlePacket(pkt)
	}
}

func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// Close tears down the socket. withoutEmit suppresses the disconnect
// notification for callers that reconnect immediately afterwards.
func (t *transport) Close(withoutEmit bool) error {
	t.mu.Lock()
	conn := t.conn
	if conn != nil && withoutEmit {
		t.suppress = true
	}
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"), deadline)
	return conn.Close()
}

// Request issues one authenticated REST call. See Driver.Request for the
// payload policy.
func (t *transport) Request(ctx context.Context, rx Rx) (json.RawMessage, error) {
	if err := rx.validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	host := t.host
	registered := t.registered
	t.mu.Unlock()
	if !registered {
		return nil, ErrNotRegistered
	}

	path := rx.Path
	if strings.Contains(path, "{sessionId}") {
		sid := host.SessionID()
		if sid == "" {
			return nil, ErrSessionNotReady
		}
		path = strings.ReplaceAll(path, "{sessionId}", sid)
	}

	// Track decoding prefers the local decoder; only the entries it
	// cannot resolve go to the node, and those may come back as nulls.
	if strings.HasSuffix(rx.Path, "/decodetracks") {
		if encoded, ok := rx.Body.([]string); ok {
			return t.decodeBatch(ctx, path, encoded)
		}
	}

	return t.do(ctx, rx.Method, path, rx.Query, rx.Body, rx.Headers)
}

// decodeBatch resolves encoded strings locally first and falls back to one
// remote decode call for the leftovers. A malformed entry never fails the
// whole batch; it stays null in the result.
func (t *transport) decodeBatch(ctx context.Context, path string, encoded []string) (json.RawMessage, error) {
	results := make([]*protocol.Track, len(encoded))
	var missing []string
	var missingIdx []int

	for i, e := range encoded {
		if tr := t.Decode(e); tr != nil {
			results[i] = tr
			continue
		}
		missing = append(missing, e)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		payload, err := t.do(ctx, http.MethodPost, path, "", missing, nil)
		if err != nil {
			return nil, err
		}
		var remote []*protocol.Track
		if payload != nil {
			if err := json.Unmarshal(payload, &remote); err != nil {
				t.log.Warn().Err(err).Msg("remote decode response unreadable")
			}
		}
		for i, idx := range missingIdx {
			if i < len(remote) {
				results[idx] = remote[i]
			}
		}
	}

	return json.Marshal(results)
}

// do performs the HTTP round trip and applies the response policy:
// 204 means success with no payload, 200 is decoded by content type, and
// any other status is a soft failure surfaced as a nil payload.
func (t *transport) do(ctx context.Context, method, path, query string, body any, extra http.Header) (json.RawMessage, error) {
	if err := t.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	scheme := "http"
	if t.info.Secure {
		scheme = "https"
	}
	prefix := t.variant.restPrefix()
	if path == versionPath {
		prefix = ""
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     t.info.Host + ":" + strconv.Itoa(t.info.Port),
		Path:     prefix + path,
		RawQuery: query,
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("driver: marshal request body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	for k, h := range t.headers(t.host) {
		for _, v := range h {
			req.Header.Set(k, v)
		}
	}
	for k, h := range extra {
		for _, v := range h {
			req.Header.Set(k, v)
		}
	}
	if path == versionPath {
		req.Header.Set("Accept", "application/json, text/plain")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("driver: %s %s: %w", method, u.String(), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("driver: read response: %w", err)
		}
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			return data, nil
		}
		return json.Marshal(string(data))
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.log.Warn().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("path", path).
			Str("body", string(snippet)).
			Msg("request produced no usable data")
		return nil, nil
	}
}

// Decode runs the local track decoder.
func (t *transport) Decode(encoded string) *protocol.Track {
	return DecodeTrack(encoded)
}

func (t *transport) headers(host Host) http.Header {
	h := http.Header{}
	h.Set("Authorization", t.info.Password)
	h.Set("Content-Type", "application/json")
	if host != nil {
		name := host.ClientName()
		if name != "" {
			h.Set("Client-Name", name)
			h.Set("User-Agent", name)
		}
	}
	return h
}
