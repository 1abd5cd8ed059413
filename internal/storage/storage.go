package storage

import (
	"encoding/json"
	"fmt"

	"github.com/keshon/datastore"
)

// Storage persists per-guild playback preferences across restarts. Queue
// contents deliberately stay in memory; the node's resume window covers
// short outages and anything longer starts fresh.
type Storage struct {
	ds *datastore.DataStore
}

// GuildPrefs is what survives a restart for one guild.
type GuildPrefs struct {
	LoopMode  string `json:"loop_mode"`
	Autoplay  bool   `json:"autoplay"`
	Volume    int    `json:"volume"`
	TextChan  string `json:"text_channel"`
	VoiceChan string `json:"voice_channel"`
}

func New(filePath string) (*Storage, error) {
	ds, err := datastore.New(filePath)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

// GuildPrefs returns the stored preferences for a guild, zero-valued when
// nothing was saved yet.
func (s *Storage) GuildPrefs(guildID string) (GuildPrefs, error) {
	var prefs GuildPrefs
	data, exists := s.ds.Get("prefs:" + guildID)
	if !exists {
		return prefs, nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return prefs, fmt.Errorf("error marshalling data: %w", err)
	}
	if err := json.Unmarshal(jsonData, &prefs); err != nil {
		return prefs, fmt.Errorf("error unmarshalling to GuildPrefs: %w", err)
	}
	return prefs, nil
}

// SetGuildPrefs stores the preferences for a guild.
func (s *Storage) SetGuildPrefs(guildID string, prefs GuildPrefs) {
	s.ds.Add("prefs:"+guildID, prefs)
}
