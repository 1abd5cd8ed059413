package tidelink

import "errors"

var (
	// ErrPlayerDestroyed is returned by every command issued to a player
	// after Destroy.
	ErrPlayerDestroyed = errors.New("player is destroyed")

	// ErrVoiceConnectTimeout is returned by Connect when the voice
	// handshake signal did not arrive within the configured window.
	ErrVoiceConnectTimeout = errors.New("voice connect timed out")

	// ErrVoiceSessionMissing and ErrVoiceEndpointMissing are voice
	// handshake failures: the gateway reported the session without the
	// data needed to reach a voice server.
	ErrVoiceSessionMissing  = errors.New("voice handshake: session id missing")
	ErrVoiceEndpointMissing = errors.New("voice handshake: endpoint missing")

	// ErrNodeNotAvailable is returned when a command needs the node but
	// reconnecting has been given up on.
	ErrNodeNotAvailable = errors.New("node is not available")

	// ErrManagerClosed is returned by operations on a closed manager.
	ErrManagerClosed = errors.New("manager is closed")
)
