package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brightwell/liveroom/go/internal/liveness"
	"github.com/brightwell/liveroom/go/internal/models"
)

// Config is the server configuration file.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	NATS struct {
		URL    string `yaml:"url"`
		Stream string `yaml:"stream"`
	} `yaml:"nats"`

	Content struct {
		Dir string `yaml:"dir"`
	} `yaml:"content"`

	// Durations are whole seconds in the config file.
	Liveness struct {
		HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
		TimeoutSeconds           int `yaml:"timeout_seconds"`
		GraceWindowSeconds       int `yaml:"grace_window_seconds"`
	} `yaml:"liveness"`

	Rooms []RoomConfig `yaml:"rooms"`
}

// RoomConfig declares one perpetual room.
type RoomConfig struct {
	Theme               string `yaml:"theme"`
	Capacity            int    `yaml:"capacity"`
	MinPlayers          int    `yaml:"min_players"`
	CluesPerSession     int    `yaml:"clues_per_session"`
	ClueDurationSeconds int    `yaml:"clue_duration_seconds"`
	IntermissionSeconds int    `yaml:"intermission_seconds"`
	SlotQuotaMin        int    `yaml:"slot_quota_min"`
	SlotQuotaMax        int    `yaml:"slot_quota_max"`
	SlotQuotaDivisor    int    `yaml:"slot_quota_divisor"`
	AITakeoverOnDrop    bool   `yaml:"ai_takeover_on_drop"`
}

// Settings converts the declaration into room settings, with defaults.
func (rc RoomConfig) Settings() models.RoomSettings {
	s := models.RoomSettings{
		Capacity:         rc.Capacity,
		MinPlayers:       rc.MinPlayers,
		CluesPerSession:  rc.CluesPerSession,
		ClueDuration:     time.Duration(rc.ClueDurationSeconds) * time.Second,
		Intermission:     time.Duration(rc.IntermissionSeconds) * time.Second,
		SlotQuotaMin:     rc.SlotQuotaMin,
		SlotQuotaMax:     rc.SlotQuotaMax,
		SlotQuotaDivisor: rc.SlotQuotaDivisor,
		AITakeoverOnDrop: rc.AITakeoverOnDrop,
	}
	if s.Capacity <= 0 {
		s.Capacity = 12
	}
	if s.MinPlayers <= 0 {
		s.MinPlayers = 4
	}
	if s.CluesPerSession <= 0 {
		s.CluesPerSession = 20
	}
	if s.ClueDuration <= 0 {
		s.ClueDuration = 15 * time.Second
	}
	if s.Intermission <= 0 {
		s.Intermission = 30 * time.Second
	}
	if s.SlotQuotaMin <= 0 {
		s.SlotQuotaMin = 2
	}
	if s.SlotQuotaMax <= 0 {
		s.SlotQuotaMax = 6
	}
	if s.SlotQuotaDivisor <= 0 {
		s.SlotQuotaDivisor = 2
	}
	return s
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":" + getEnv("PORT", "8080")
	}
	if config.NATS.URL == "" {
		config.NATS.URL = getEnv("NATS_URL", "nats://localhost:4222")
	}
	if config.Content.Dir == "" {
		config.Content.Dir = getEnv("CONTENT_DIR", "content")
	}
	return &config, nil
}

func (c *Config) livenessConfig() liveness.Config {
	cfg := liveness.DefaultConfig()
	if c.Liveness.HeartbeatIntervalSeconds > 0 {
		cfg.HeartbeatInterval = time.Duration(c.Liveness.HeartbeatIntervalSeconds) * time.Second
	}
	if c.Liveness.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(c.Liveness.TimeoutSeconds) * time.Second
	}
	if c.Liveness.GraceWindowSeconds > 0 {
		cfg.GraceWindow = time.Duration(c.Liveness.GraceWindowSeconds) * time.Second
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
