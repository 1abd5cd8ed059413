package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/keshon/tidelink/internal/storage"
	"github.com/keshon/tidelink/pkg/tidelink"
)

const cmdPrefix = "!"

// onMessageCreate dispatches prefix commands.
func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID || m.GuildID == "" {
		return
	}
	if !strings.HasPrefix(m.Content, cmdPrefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, cmdPrefix))
	if len(fields) == 0 {
		return
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch cmd {
	case "play", "p":
		err = b.cmdPlay(ctx, m, strings.Join(args, " "))
	case "skip", "next":
		err = b.cmdSkip(ctx, m)
	case "pause":
		err = b.cmdPause(ctx, m, true)
	case "resume":
		err = b.cmdPause(ctx, m, false)
	case "stop":
		err = b.cmdStop(ctx, m)
	case "loop":
		err = b.cmdLoop(m, args)
	case "autoplay":
		err = b.cmdAutoplay(m)
	case "now", "np":
		err = b.cmdNowPlaying(m)
	case "queue", "q":
		err = b.cmdQueue(m)
	case "leave", "disconnect":
		err = b.cmdLeave(ctx, m)
	default:
		return
	}

	if err != nil {
		b.log.Warn().Err(err).Str("command", cmd).Str("guild", m.GuildID).Msg("command failed")
		b.reply(m, fmt.Sprintf("❌ %v", err))
	}
}

func (b *Bot) reply(m *discordgo.MessageCreate, content string) {
	if _, err := b.dg.ChannelMessageSend(m.ChannelID, content); err != nil {
		b.log.Debug().Err(err).Msg("reply failed")
	}
}

// guildPlayer returns the player for the invoking guild, creating and
// voice-connecting it when the user sits in a voice channel.
func (b *Bot) guildPlayer(ctx context.Context, m *discordgo.MessageCreate, create bool) (*tidelink.Player, error) {
	mgr := b.manager()
	if mgr == nil {
		return nil, fmt.Errorf("audio node is not configured")
	}
	if p, ok := mgr.Player(m.GuildID); ok {
		return p, nil
	}
	if !create {
		return nil, fmt.Errorf("nothing is playing here")
	}

	vs, err := b.FindUserVoiceState(m.GuildID, m.Author.ID)
	if err != nil {
		return nil, fmt.Errorf("join a voice channel first")
	}

	prefs, err := b.storage.GuildPrefs(m.GuildID)
	if err != nil {
		b.log.Debug().Err(err).Str("guild", m.GuildID).Msg("loading guild prefs failed")
	}

	p, err := mgr.CreatePlayer(tidelink.PlayerOptions{
		GuildID:        m.GuildID,
		VoiceChannelID: vs.ChannelID,
		TextChannelID:  m.ChannelID,
		SelfDeaf:       true,
		Volume:         prefs.Volume,
	})
	if err != nil {
		return nil, err
	}

	if mode, ok := tidelink.ParseLoopMode(prefs.LoopMode); ok {
		p.SetLoop(mode)
	}
	p.SetAutoplay(prefs.Autoplay)

	if err := p.Connect(ctx); err != nil {
		return nil, fmt.Errorf("voice connect failed: %w", err)
	}
	return p, nil
}

func (b *Bot) cmdPlay(ctx context.Context, m *discordgo.MessageCreate, query string) error {
	if query == "" {
		return fmt.Errorf("usage: %splay <link or search query>", cmdPrefix)
	}

	p, err := b.guildPlayer(ctx, m, true)
	if err != nil {
		return err
	}

	res, err := p.Resolve(ctx, tidelink.ResolveOptions{
		Query:     query,
		Requester: m.Author.Username,
	})
	if err != nil {
		return err
	}

	switch {
	case res.Exception != nil:
		return fmt.Errorf("load failed: %s", res.Exception.Message)
	case len(res.Tracks) == 0:
		return fmt.Errorf("no results for %q", query)
	}

	if res.PlaylistName != "" {
		p.Queue().Add(res.Tracks...)
		b.reply(m, fmt.Sprintf("🎶 Queued playlist **%s** (%d tracks)", res.PlaylistName, len(res.Tracks)))
	} else {
		p.Queue().Add(res.Tracks[0])
		if p.IsPlaying() || p.IsPaused() {
			b.reply(m, fmt.Sprintf("🎶 Queued: **%s**", res.Tracks[0].Title()))
		}
	}

	if !p.IsPlaying() && !p.IsPaused() {
		return p.Play(ctx)
	}
	return nil
}

func (b *Bot) cmdSkip(ctx context.Context, m *discordgo.MessageCreate) error {
	p, err := b.guildPlayer(ctx, m, false)
	if err != nil {
		return err
	}
	return p.Skip(ctx)
}

func (b *Bot) cmdPause(ctx context.Context, m *discordgo.MessageCreate, paused bool) error {
	p, err := b.guildPlayer(ctx, m, false)
	if err != nil {
		return err
	}
	return p.Pause(ctx, paused)
}

func (b *Bot) cmdStop(ctx context.Context, m *discordgo.MessageCreate) error {
	p, err := b.guildPlayer(ctx, m, false)
	if err != nil {
		return err
	}
	return p.Stop(ctx)
}

func (b *Bot) cmdLoop(m *discordgo.MessageCreate, args []string) error {
	p, err := b.guildPlayer(context.Background(), m, false)
	if err != nil {
		return err
	}

	var mode tidelink.LoopMode
	if len(args) > 0 {
		parsed, ok := tidelink.ParseLoopMode(args[0])
		if !ok {
			return fmt.Errorf("unknown loop mode %q (none, track, queue)", args[0])
		}
		mode = p.SetLoop(parsed)
	} else {
		mode = p.SetLoop()
	}

	b.savePrefs(m.GuildID, p)
	b.reply(m, fmt.Sprintf("🔁 Loop mode: **%s**", mode))
	return nil
}

func (b *Bot) cmdAutoplay(m *discordgo.MessageCreate) error {
	p, err := b.guildPlayer(context.Background(), m, false)
	if err != nil {
		return err
	}
	enabled := p.SetAutoplay()
	b.savePrefs(m.GuildID, p)
	if enabled {
		b.reply(m, "♾️ Autoplay enabled")
	} else {
		b.reply(m, "♾️ Autoplay disabled")
	}
	return nil
}

func (b *Bot) cmdNowPlaying(m *discordgo.MessageCreate) error {
	p, err := b.guildPlayer(context.Background(), m, false)
	if err != nil {
		return err
	}
	current := p.Queue().Current()
	if current == nil {
		return fmt.Errorf("nothing is playing")
	}
	pos := time.Duration(p.Position()) * time.Millisecond
	total := time.Duration(current.Info.Length) * time.Millisecond
	b.reply(m, fmt.Sprintf("▶️ **%s** by %s [%s / %s]",
		current.Title(), current.Info.Author, fmtDuration(pos), fmtDuration(total)))
	return nil
}

func (b *Bot) cmdQueue(m *discordgo.MessageCreate) error {
	p, err := b.guildPlayer(context.Background(), m, false)
	if err != nil {
		return err
	}

	tracks := p.Queue().Tracks()
	if len(tracks) == 0 {
		b.reply(m, "Queue is empty")
		return nil
	}

	var sb strings.Builder
	for i, t := range tracks {
		if i >= 10 {
			fmt.Fprintf(&sb, "… and %d more\n", len(tracks)-i)
			break
		}
		fmt.Fprintf(&sb, "%d. **%s** (requested by %s)\n", i+1, t.Title(), t.Requester)
	}
	b.reply(m, sb.String())
	return nil
}

func (b *Bot) cmdLeave(ctx context.Context, m *discordgo.MessageCreate) error {
	p, err := b.guildPlayer(ctx, m, false)
	if err != nil {
		return err
	}
	return p.Destroy(ctx)
}

func (b *Bot) savePrefs(guildID string, p *tidelink.Player) {
	b.storage.SetGuildPrefs(guildID, storage.GuildPrefs{
		LoopMode:  p.Loop().String(),
		Autoplay:  p.IsAutoplay(),
		Volume:    p.Volume(),
		TextChan:  p.TextChannelID(),
		VoiceChan: p.VoiceChannelID(),
	})
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
