package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/tidelink/pkg/tidelink"
	"github.com/keshon/tidelink/pkg/tidelink/protocol"
)

func toVoiceServerUpdate(v *discordgo.VoiceServerUpdate) protocol.VoiceServerUpdate {
	out := protocol.VoiceServerUpdate{
		Token:   v.Token,
		GuildID: v.GuildID,
	}
	if v.Endpoint != "" {
		ep := v.Endpoint
		out.Endpoint = &ep
	}
	return out
}

// consumeEvents turns library lifecycle events into channel notices.
func (b *Bot) consumeEvents(ctx context.Context) {
	events, cancel := b.manager().Subscribe(32,
		tidelink.EventTrackStart,
		tidelink.EventTrackError,
		tidelink.EventQueueEmpty,
		tidelink.EventNodeDown,
	)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			b.handleEvent(evt)
		}
	}
}

func (b *Bot) handleEvent(evt tidelink.Event) {
	switch e := evt.(type) {
	case tidelink.TrackStartEvent:
		b.notify(e.GuildID, fmt.Sprintf("▶️ Now playing: **%s**", e.Track.Title()))
	case tidelink.TrackErrorEvent:
		b.notify(e.GuildID, fmt.Sprintf("❌ Track failed: **%s**", e.Track.Title()))
	case tidelink.QueueEmptyEvent:
		b.notify(e.GuildID, "⏹ Queue is empty, playback stopped")
	case tidelink.NodeDownEvent:
		b.log.Error().Int("attempts", e.Attempts).Msg("audio node is down, playback unavailable")
	}
}

// notify posts to the guild player's text channel, if one is set.
func (b *Bot) notify(guildID, message string) {
	p, ok := b.manager().Player(guildID)
	if !ok || p.TextChannelID() == "" {
		return
	}
	if _, err := b.dg.ChannelMessageSend(p.TextChannelID(), message); err != nil {
		b.log.Debug().Err(err).Str("guild", guildID).Msg("notify failed")
	}
}
