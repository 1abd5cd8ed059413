package tidelink

import "github.com/keshon/tidelink/pkg/tidelink/protocol"

// Track is an immutable playback entry. A track may exist unresolved,
// holding only the search query it was requested with; it is resolved
// lazily before the player reports it to the node.
type Track struct {
	Encoded   string
	Info      protocol.TrackInfo
	Requester string

	// Query and Source are set on unresolved tracks only.
	Query  string
	Source string
}

// NewTrack wraps a node-provided track with its requester.
func NewTrack(t protocol.Track, requester string) *Track {
	return &Track{Encoded: t.Encoded, Info: t.Info, Requester: requester}
}

// NewUnresolvedTrack creates a track that still needs a search round trip.
func NewUnresolvedTrack(query, source, requester string) *Track {
	return &Track{Query: query, Source: source, Requester: requester}
}

// Resolved reports whether the track carries an encoded payload.
func (t *Track) Resolved() bool {
	return t != nil && t.Encoded != ""
}

// Title returns the decoded title, or the raw query for unresolved tracks.
func (t *Track) Title() string {
	if t == nil {
		return ""
	}
	if t.Info.Title != "" {
		return t.Info.Title
	}
	return t.Query
}
