package protocol

import "encoding/json"

// LoadType classifies the outcome of a loadtracks call.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// LoadResult is the raw loadtracks response; Data's shape depends on
// LoadType. The typed accessors decode it on demand.
type LoadResult struct {
	LoadType LoadType        `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

// Track decodes the single-track variant.
func (r *LoadResult) Track() (*Track, error) {
	var t Track
	if err := json.Unmarshal(r.Data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Tracks decodes the search variant.
func (r *LoadResult) Tracks() ([]Track, error) {
	var ts []Track
	if err := json.Unmarshal(r.Data, &ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Playlist decodes the playlist variant.
func (r *LoadResult) Playlist() (*Playlist, error) {
	var p Playlist
	if err := json.Unmarshal(r.Data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Exception decodes the error variant.
func (r *LoadResult) Exception() (*TrackException, error) {
	var e TrackException
	if err := json.Unmarshal(r.Data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Playlist is the playlist variant of a load result.
type Playlist struct {
	Info struct {
		Name          string `json:"name"`
		SelectedTrack int    `json:"selectedTrack"`
	} `json:"info"`
	PluginInfo json.RawMessage `json:"pluginInfo,omitempty"`
	Tracks     []Track         `json:"tracks"`
}

// UpdatePlayerTrack selects the track for an update call. A nil Encoded
// pointer serializes as "encoded": null, which tells the node to stop.
type UpdatePlayerTrack struct {
	Encoded  *string         `json:"encoded"`
	UserData json.RawMessage `json:"userData,omitempty"`
}

// UpdatePlayerPayload is the body of PATCH .../players/{guildId}. Only the
// fields present are applied by the node.
type UpdatePlayerPayload struct {
	Track    *UpdatePlayerTrack `json:"track,omitempty"`
	Position *int64             `json:"position,omitempty"`
	EndTime  *int64             `json:"endTime,omitempty"`
	Volume   *int               `json:"volume,omitempty"`
	Paused   *bool              `json:"paused,omitempty"`
	Filters  json.RawMessage    `json:"filters,omitempty"`
	Voice    *VoiceStatePayload `json:"voice,omitempty"`
}

// VoiceStatePayload is the voice handshake triple forwarded to the node.
type VoiceStatePayload struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// SessionUpdatePayload is the body of PATCH /sessions/{sessionId}.
type SessionUpdatePayload struct {
	Resuming *bool `json:"resuming,omitempty"`
	Timeout  *int  `json:"timeout,omitempty"`
}

// VoiceServerUpdate mirrors the gateway VOICE_SERVER_UPDATE dispatch.
// Endpoint is nullable: the gateway sends null when the allocated voice
// server went away and a new dispatch should be awaited.
type VoiceServerUpdate struct {
	Token    string  `json:"token"`
	GuildID  string  `json:"guild_id"`
	Endpoint *string `json:"endpoint"`
}
