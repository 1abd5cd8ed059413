// Package discord wires a Discord session to the tidelink manager: it
// forwards voice-gateway dispatches into the library, implements the
// outbound voice transport, and exposes a small music command surface.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/keshon/tidelink/internal/config"
	"github.com/keshon/tidelink/internal/storage"
	"github.com/keshon/tidelink/internal/version"
	"github.com/keshon/tidelink/pkg/tidelink"
	"github.com/keshon/tidelink/pkg/tidelink/driver"
)

// Bot is a Discord bot backed by a remote audio node.
type Bot struct {
	dg      *discordgo.Session
	mgr     *tidelink.Manager
	storage *storage.Storage
	cfg     *config.Config
	log     zerolog.Logger

	mu sync.RWMutex
}

// StartBot runs the Discord bot until the context is canceled.
func StartBot(ctx context.Context, cfg *config.Config, store *storage.Storage, log zerolog.Logger) error {
	b := &Bot{
		cfg:     cfg,
		storage: store,
		log:     log.With().Str("component", "discord").Logger(),
	}
	if err := b.run(ctx); err != nil {
		return fmt.Errorf("bot run error: %w", err)
	}
	return nil
}

// run starts the Discord session and the node manager.
func (b *Bot) run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	b.dg = dg

	b.configureIntents()
	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)
	dg.AddHandler(b.onVoiceServerUpdate)
	dg.AddHandler(b.onVoiceStateUpdate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	kind, err := driver.ParseKind(b.cfg.NodeDriver)
	if err != nil {
		return err
	}

	mgr, err := tidelink.NewManager(tidelink.Options{
		UserID:     dg.State.User.ID,
		ClientName: version.ClientName(),
		Voice:      b,
		Logger:     b.log,
		Node: tidelink.NodeOptions{
			Host:                 b.cfg.NodeHost,
			Port:                 b.cfg.NodePort,
			Secure:               b.cfg.NodeSecure,
			Password:             b.cfg.NodePassword,
			Driver:               kind,
			Resume:               b.cfg.NodeResume,
			ResumeTimeout:        b.cfg.NodeResumeTimeout,
			ReconnectTries:       b.cfg.ReconnectTries,
			ReconnectInterval:    b.cfg.ReconnectInterval,
			ReconnectExponential: b.cfg.ReconnectExponential,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create node manager: %w", err)
	}
	b.setManager(mgr)
	defer mgr.Close()

	if err := mgr.Connect(ctx); err != nil {
		// The reconnect policy takes over from here; starting without a
		// node is survivable, commands will say so.
		b.log.Error().Err(err).Msg("initial node connect failed")
	}

	go b.consumeEvents(ctx)

	<-ctx.Done()
	b.log.Info().Msg("shutdown signal received, cleaning up")
	return nil
}

func (b *Bot) configureIntents() {
	b.dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent
}

func (b *Bot) setManager(m *tidelink.Manager) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mgr = m
}

func (b *Bot) manager() *tidelink.Manager {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mgr
}

// SendVoiceUpdate implements tidelink.VoiceTransport by sending the raw
// voice-state-update packet on the gateway. An empty channel id leaves.
func (b *Bot) SendVoiceUpdate(guildID, channelID string, selfDeaf, selfMute bool) error {
	return b.dg.ChannelVoiceJoinManual(guildID, channelID, selfMute, selfDeaf)
}

// ShardID implements tidelink.VoiceTransport.
func (b *Bot) ShardID(guildID string) int {
	return b.dg.ShardID
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("discord session ready")
}

// onVoiceServerUpdate forwards the voice server allocation to the library.
func (b *Bot) onVoiceServerUpdate(s *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	mgr := b.manager()
	if mgr == nil {
		return
	}
	mgr.HandleVoiceServerUpdate(toVoiceServerUpdate(v))
}

// onVoiceStateUpdate forwards the bot's own voice session to the library.
func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	mgr := b.manager()
	if mgr == nil {
		return
	}
	mgr.HandleVoiceStateUpdate(v.GuildID, v.UserID, v.SessionID, v.ChannelID)
}

// FindUserVoiceState finds the voice state of a user.
func (b *Bot) FindUserVoiceState(guildID, userID string) (*discordgo.VoiceState, error) {
	guild, err := b.dg.State.Guild(guildID)
	if err != nil {
		return nil, fmt.Errorf("error retrieving guild: %w", err)
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs, nil
		}
	}
	return nil, fmt.Errorf("user not in any voice channel")
}
