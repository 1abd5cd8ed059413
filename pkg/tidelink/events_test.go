package tidelink

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFiltersByTag(t *testing.T) {
	b := newBus(zerolog.Nop())

	ch, cancel := b.subscribe(8, EventTrackStart, EventTrackEnd)
	defer cancel()

	b.publish(TrackStartEvent{GuildID: "g1"})
	b.publish(QueueEmptyEvent{GuildID: "g1"})
	b.publish(TrackEndEvent{GuildID: "g1"})

	first := <-ch
	assert.Equal(t, EventTrackStart, first.Type())
	second := <-ch
	assert.Equal(t, EventTrackEnd, second.Type())
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %#v", e)
	default:
	}
}

func TestBusEmptyFilterReceivesEverything(t *testing.T) {
	b := newBus(zerolog.Nop())

	ch, cancel := b.subscribe(8)
	defer cancel()

	b.publish(TrackStartEvent{})
	b.publish(NodeDownEvent{Attempts: 5})

	assert.Equal(t, EventTrackStart, (<-ch).Type())
	assert.Equal(t, EventNodeDown, (<-ch).Type())
}

func TestBusDropsWhenSubscriberLags(t *testing.T) {
	b := newBus(zerolog.Nop())

	ch, cancel := b.subscribe(1, EventQueueEmpty)
	defer cancel()

	// Publishing never blocks: the overflow is dropped.
	b.publish(QueueEmptyEvent{GuildID: "1"})
	b.publish(QueueEmptyEvent{GuildID: "2"})
	b.publish(QueueEmptyEvent{GuildID: "3"})

	got := (<-ch).(QueueEmptyEvent)
	assert.Equal(t, "1", got.GuildID)
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %#v", e)
	default:
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	b := newBus(zerolog.Nop())

	ch, cancel := b.subscribe(1)
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic on the closed channel.
	require.NotPanics(t, func() { b.publish(DebugEvent{Message: "x"}) })
}

func TestBusCloseClosesAllSubscribers(t *testing.T) {
	b := newBus(zerolog.Nop())

	ch1, _ := b.subscribe(1)
	ch2, _ := b.subscribe(1)
	b.close()

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)

	// Subscribing to a closed bus yields an already-closed channel.
	ch3, cancel := b.subscribe(1)
	_, open = <-ch3
	assert.False(t, open)
	require.NotPanics(t, cancel)
	require.NotPanics(t, b.close)
}
