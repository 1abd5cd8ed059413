package tidelink

// VoiceTransport is the outbound voice-gateway collaborator: it sends raw
// voice-state-update packets on the shard owning a guild. An empty
// channelID leaves the voice channel.
type VoiceTransport interface {
	SendVoiceUpdate(guildID, channelID string, selfDeaf, selfMute bool) error
	ShardID(guildID string) int
}

// voiceSignal is the outcome of the bounded wait inside Player.Connect.
type voiceSignal int

const (
	signalSessionReady voiceSignal = iota
	signalSessionIDMissing
	signalEndpointMissing
)

// voiceServer is the handshake triple assembled from the gateway's
// VOICE_STATE_UPDATE and VOICE_SERVER_UPDATE dispatches. Once complete it
// is forwarded to the node, which connects to the voice server itself.
type voiceServer struct {
	sessionID string
	token     string
	endpoint  string
}

func (v voiceServer) complete() bool {
	return v.sessionID != "" && v.token != "" && v.endpoint != ""
}
