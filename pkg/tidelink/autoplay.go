package tidelink

import (
	"context"
	"math/rand"
)

// autoplayNext enqueues a follow-up track derived from the previous one.
// A user-supplied resolver is consulted first and short-circuits on a
// valid result. This path never propagates an error: every failure,
// including a panicking resolver, degrades to a skip.
func (p *Player) autoplayNext(ctx context.Context, previous *Track) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn().Interface("panic", r).Msg("autoplay resolver panicked")
			p.skipOrEmpty(ctx)
		}
	}()

	if fn := p.m.opts.Autoplay; fn != nil {
		handled, err := fn(p, previous)
		if err != nil {
			p.log.Debug().Err(err).Msg("custom autoplay resolver failed")
		} else if handled {
			return
		}
	}

	if previous == nil || !previous.Resolved() {
		p.skipOrEmpty(ctx)
		return
	}

	query, source := relatedQuery(previous)
	res, err := p.Resolve(ctx, ResolveOptions{
		Query:     query,
		Source:    source,
		Requester: previous.Requester,
	})
	if err != nil || res == nil {
		p.skipOrEmpty(ctx)
		return
	}

	candidates := make([]*Track, 0, len(res.Tracks))
	for _, t := range res.Tracks {
		if t.Info.Identifier != previous.Info.Identifier {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		p.skipOrEmpty(ctx)
		return
	}

	pick := candidates[rand.Intn(len(candidates))]
	p.queue.Add(pick)
	if err := p.Play(ctx); err != nil {
		p.log.Debug().Err(err).Msg("autoplay playback failed")
		p.skipOrEmpty(ctx)
	}
}

// skipOrEmpty is the autoplay fallback: skip when there is still a queue
// to advance, otherwise tell the host playback ran dry.
func (p *Player) skipOrEmpty(ctx context.Context) {
	if p.queue.Len() == 0 {
		p.m.bus.publish(QueueEmptyEvent{GuildID: p.GuildID()})
		return
	}
	if err := p.Skip(ctx); err != nil {
		p.log.Debug().Err(err).Msg("autoplay skip failed")
	}
}

// relatedQuery derives a follow-up lookup from the finished track,
// specialized per source.
func relatedQuery(previous *Track) (query, source string) {
	id := previous.Info.Identifier
	switch previous.Info.SourceName {
	case "youtube":
		// The autogenerated radio playlist for the finished track.
		return "https://www.youtube.com/watch?v=" + id + "&list=RD" + id, "youtube"
	case "soundcloud":
		return previous.Info.Author, "soundcloud"
	default:
		q := previous.Info.Title
		if previous.Info.Author != "" {
			q += " " + previous.Info.Author
		}
		return q, "youtube"
	}
}
