package tidelink

import (
	"strings"
	"sync"
)

// LoopMode controls what happens when a track finishes.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopTrack
	LoopQueue
)

func (m LoopMode) String() string {
	switch m {
	case LoopTrack:
		return "track"
	case LoopQueue:
		return "queue"
	default:
		return "none"
	}
}

// ParseLoopMode normalizes external loop mode aliases.
func ParseLoopMode(s string) (LoopMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off", "no":
		return LoopNone, true
	case "track", "song", "one":
		return LoopTrack, true
	case "queue", "all":
		return LoopQueue, true
	default:
		return LoopNone, false
	}
}

// next cycles NONE -> TRACK -> QUEUE -> NONE.
func (m LoopMode) next() LoopMode {
	switch m {
	case LoopNone:
		return LoopTrack
	case LoopTrack:
		return LoopQueue
	default:
		return LoopNone
	}
}

// Queue is the ordered pending-track list owned by one player, plus the
// current and previous track pointers. The current track is never a member
// of the pending sequence.
type Queue struct {
	mu       sync.Mutex
	pending  []*Track
	current  *Track
	previous *Track
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add appends tracks to the back of the pending sequence.
func (q *Queue) Add(tracks ...*Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, tracks...)
}

// AddFront inserts a track at the front of the pending sequence.
func (q *Queue) AddFront(t *Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]*Track{t}, q.pending...)
}

// Next pops the head of the pending sequence and promotes it to current.
// It returns nil when the queue is empty.
func (q *Queue) Next() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	q.current = t
	return t
}

// Archive moves the current track to previous and clears current.
func (q *Queue) Archive() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil {
		q.previous = q.current
		q.current = nil
	}
}

// Current returns the track actively reported to the node, if any.
func (q *Queue) Current() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Previous returns the last completed track, if any.
func (q *Queue) Previous() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.previous
}

// Len returns the number of pending tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Tracks returns a copy of the pending sequence.
func (q *Queue) Tracks() []*Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Track, len(q.pending))
	copy(out, q.pending)
	return out
}

// Clear drops all pending tracks and both pointers.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.current = nil
	q.previous = nil
}
