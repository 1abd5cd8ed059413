package tidelink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

func TestTrackResolved(t *testing.T) {
	var nilTrack *Track
	assert.False(t, nilTrack.Resolved())
	assert.False(t, NewUnresolvedTrack("query", "", "user").Resolved())
	assert.True(t, NewTrack(protocol.Track{Encoded: "abc"}, "user").Resolved())
}

func TestTrackTitleFallsBackToQuery(t *testing.T) {
	var nilTrack *Track
	assert.Empty(t, nilTrack.Title())

	unresolved := NewUnresolvedTrack("some song", "", "user")
	assert.Equal(t, "some song", unresolved.Title())

	resolved := NewTrack(protocol.Track{Info: protocol.TrackInfo{Title: "Real Title"}}, "user")
	assert.Equal(t, "Real Title", resolved.Title())
}
