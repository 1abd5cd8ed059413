package driver

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

// Encoded track layout: a big-endian int32 whose top two bits are flags and
// lower 30 bits the message size, an optional version byte, then
// length-prefixed strings and fixed-width fields. The track position is the
// trailing int64, after any source-specific extras.
const trackInfoVersioned = 1

// DecodeTrack converts an encoded track string into its metadata without a
// round trip to the node. It returns nil on malformed input; decoding is
// best effort and never panics outward.
func DecodeTrack(encoded string) *protocol.Track {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	r := &byteReader{buf: raw}

	header := r.int32()
	flags := (header >> 30) & 0x3
	size := header & 0x3FFFFFFF
	if r.failed || int(size) > len(raw)-4 {
		return nil
	}

	version := uint8(1)
	if flags&trackInfoVersioned != 0 {
		version = r.uint8()
	}
	if version < 1 || version > 3 {
		return nil
	}

	var info protocol.TrackInfo
	info.Title = r.utf()
	info.Author = r.utf()
	info.Length = r.int64()
	info.Identifier = r.utf()
	info.IsStream = r.bool()
	if version >= 2 {
		info.URI = r.optionalUTF()
	}
	if version >= 3 {
		info.ArtworkURL = r.optionalUTF()
		info.ISRC = r.optionalUTF()
	}
	info.SourceName = r.utf()
	if r.failed {
		return nil
	}
	info.IsSeekable = !info.IsStream

	// Source-specific extras sit between sourceName and the trailing
	// position, so the position is read from the end of the message.
	if rest := len(r.buf) - r.off; rest >= 8 {
		info.Position = int64(binary.BigEndian.Uint64(r.buf[len(r.buf)-8:]))
	}

	return &protocol.Track{Encoded: encoded, Info: info}
}

// byteReader is a sticky-error big-endian reader over the decoded payload.
type byteReader struct {
	buf    []byte
	off    int
	failed bool
}

func (r *byteReader) take(n int) []byte {
	if r.failed || r.off+n > len(r.buf) {
		r.failed = true
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *byteReader) uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *byteReader) bool() bool {
	return r.uint8() != 0
}

func (r *byteReader) int32() int32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (r *byteReader) int64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// utf reads a Java DataInput string: uint16 byte length plus payload.
func (r *byteReader) utf() string {
	n := r.take(2)
	if n == nil {
		return ""
	}
	b := r.take(int(binary.BigEndian.Uint16(n)))
	if b == nil {
		return ""
	}
	return string(b)
}

// optionalUTF reads a bool-prefixed nullable string.
func (r *byteReader) optionalUTF() string {
	if !r.bool() {
		return ""
	}
	return r.utf()
}
