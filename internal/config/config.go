// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

// Package config loads the daemon configuration in three layers: built-in
// defaults, an optional YAML file, then SCROBBLERELAY_ environment variables.
// Config is immutable after Load and safe for concurrent reads.
package config

import (
	"fmt"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Sources    SourcesConfig    `koanf:"sources"`
	Clients    ClientsConfig    `koanf:"clients"`
	Transform  TransformConfig  `koanf:"transform"`
	Notify     NotifyConfig     `koanf:"notify"`
	DeadLetter DeadLetterConfig `koanf:"deadletter"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// PollConfig holds the shared polling-loop tuning applied to every source.
type PollConfig struct {
	Interval        time.Duration `koanf:"interval"`
	MaxInterval     time.Duration `koanf:"max_interval"`
	CheckActiveFor  time.Duration `koanf:"check_active_for"`
	MaxPollRetries  int           `koanf:"max_poll_retries"`
	RetryMultiplier time.Duration `koanf:"retry_multiplier"`
}

// SourcesConfig enables and configures play sources.
type SourcesConfig struct {
	Poll         PollConfig               `koanf:"poll"`
	ListenBrainz ListenBrainzSourceConfig `koanf:"listenbrainz"`
	Subsonic     SubsonicSourceConfig     `koanf:"subsonic"`
	Webhook      WebhookSourceConfig      `koanf:"webhook"`
}

type ListenBrainzSourceConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Name     string        `koanf:"name"`
	URL      string        `koanf:"url"`
	Token    string        `koanf:"token"`
	Username string        `koanf:"username"`
	Limit    int           `koanf:"limit"`
	Timeout  time.Duration `koanf:"timeout"`
}

type SubsonicSourceConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Name     string        `koanf:"name"`
	URL      string        `koanf:"url"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	Timeout  time.Duration `koanf:"timeout"`
}

type WebhookSourceConfig struct {
	Enabled bool   `koanf:"enabled"`
	Name    string `koanf:"name"`
}

// ClientOptionsConfig holds the shared delivery tuning applied to every
// client processor.
type ClientOptionsConfig struct {
	CheckExistingScrobbles bool          `koanf:"check_existing_scrobbles"`
	Tolerance              time.Duration `koanf:"tolerance"`
	ScrobbleDelay          time.Duration `koanf:"scrobble_delay"`
	ScrobbleSleep          time.Duration `koanf:"scrobble_sleep"`
	MaxProcessingRetries   int           `koanf:"max_processing_retries"`
	RetryBackoff           time.Duration `koanf:"retry_backoff"`
	DeadLetterRetryCeiling int           `koanf:"deadletter_retry_ceiling"`
	HistoryLimit           int           `koanf:"history_limit"`
}

// ClientsConfig enables and configures scrobble clients.
type ClientsConfig struct {
	Options      ClientOptionsConfig      `koanf:"options"`
	ListenBrainz ListenBrainzClientConfig `koanf:"listenbrainz"`
	Maloja       MalojaClientConfig       `koanf:"maloja"`
	Lastfm       LastfmClientConfig       `koanf:"lastfm"`
}

type ListenBrainzClientConfig struct {
	Enabled  bool          `koanf:"enabled"`
	URL      string        `koanf:"url"`
	Token    string        `koanf:"token"`
	Username string        `koanf:"username"`
	Timeout  time.Duration `koanf:"timeout"`
}

type MalojaClientConfig struct {
	Enabled bool          `koanf:"enabled"`
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
}

type LastfmClientConfig struct {
	Enabled    bool   `koanf:"enabled"`
	APIKey     string `koanf:"api_key"`
	APISecret  string `koanf:"api_secret"`
	SessionKey string `koanf:"session_key"`
	Username   string `koanf:"username"`
}

// WhenConfig guards a transform rule on the original play's contents.
type WhenConfig struct {
	Title  string `koanf:"title"`
	Artist string `koanf:"artist"`
	Album  string `koanf:"album"`
}

// RuleConfig is one search/replace transform rule.
type RuleConfig struct {
	Field   string     `koanf:"field"`
	Search  string     `koanf:"search"`
	Replace string     `koanf:"replace"`
	When    WhenConfig `koanf:"when"`
}

// TransformConfig maps hook names (precompare, candidate, existing,
// postcompare) to ordered rule lists.
type TransformConfig struct {
	Hooks map[string][]RuleConfig `koanf:"hooks"`
}

// NotifyConfig enables outbound notifiers.
type NotifyConfig struct {
	Webhook WebhookNotifyConfig `koanf:"webhook"`
	Gotify  GotifyNotifyConfig  `koanf:"gotify"`
	Ntfy    NtfyNotifyConfig    `koanf:"ntfy"`
}

type WebhookNotifyConfig struct {
	Enabled   bool          `koanf:"enabled"`
	URL       string        `koanf:"url"`
	RateLimit time.Duration `koanf:"rate_limit"`
}

type GotifyNotifyConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Token   string `koanf:"token"`
}

type NtfyNotifyConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
	Topic   string `koanf:"topic"`
	Token   string `koanf:"token"`
}

// DeadLetterConfig tunes the heartbeat dead-letter sweep.
type DeadLetterConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8723,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Sources: SourcesConfig{
			Poll: PollConfig{
				Interval:        30 * time.Second,
				MaxInterval:     5 * time.Minute,
				CheckActiveFor:  5 * time.Minute,
				MaxPollRetries:  5,
				RetryMultiplier: time.Second,
			},
			ListenBrainz: ListenBrainzSourceConfig{Limit: 25},
			Webhook:      WebhookSourceConfig{Name: "webhook"},
		},
		Clients: ClientsConfig{
			Options: ClientOptionsConfig{
				CheckExistingScrobbles: true,
				Tolerance:              10 * time.Second,
				ScrobbleDelay:          time.Second,
				ScrobbleSleep:          10 * time.Second,
				MaxProcessingRetries:   5,
				RetryBackoff:           30 * time.Second,
				DeadLetterRetryCeiling: 5,
				HistoryLimit:           50,
			},
		},
		Notify: NotifyConfig{
			Webhook: WebhookNotifyConfig{RateLimit: 500 * time.Millisecond},
		},
		DeadLetter: DeadLetterConfig{
			SweepInterval: 5 * time.Minute,
		},
	}
}

// Validate checks cross-field requirements with actionable messages.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range 1-65535", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.DeadLetter.SweepInterval <= 0 {
		return fmt.Errorf("deadletter.sweep_interval must be positive")
	}
	if c.Sources.Poll.Interval <= 0 {
		return fmt.Errorf("sources.poll.interval must be positive")
	}
	if c.Sources.Poll.MaxInterval < c.Sources.Poll.Interval {
		return fmt.Errorf("sources.poll.max_interval must be >= sources.poll.interval")
	}

	if !c.Sources.ListenBrainz.Enabled && !c.Sources.Subsonic.Enabled && !c.Sources.Webhook.Enabled {
		return fmt.Errorf("no sources enabled; enable at least one of sources.listenbrainz, sources.subsonic, sources.webhook")
	}
	if !c.Clients.ListenBrainz.Enabled && !c.Clients.Maloja.Enabled && !c.Clients.Lastfm.Enabled {
		return fmt.Errorf("no clients enabled; enable at least one of clients.listenbrainz, clients.maloja, clients.lastfm")
	}

	if s := c.Sources.ListenBrainz; s.Enabled && (s.Token == "" || s.Username == "") {
		return fmt.Errorf("sources.listenbrainz requires token and username")
	}
	if s := c.Sources.Subsonic; s.Enabled && (s.URL == "" || s.Username == "" || s.Password == "") {
		return fmt.Errorf("sources.subsonic requires url, username and password")
	}
	if cl := c.Clients.ListenBrainz; cl.Enabled && (cl.Token == "" || cl.Username == "") {
		return fmt.Errorf("clients.listenbrainz requires token and username")
	}
	if cl := c.Clients.Maloja; cl.Enabled && (cl.URL == "" || cl.APIKey == "") {
		return fmt.Errorf("clients.maloja requires url and api_key")
	}
	if cl := c.Clients.Lastfm; cl.Enabled && (cl.APIKey == "" || cl.APISecret == "" || cl.SessionKey == "" || cl.Username == "") {
		return fmt.Errorf("clients.lastfm requires api_key, api_secret, session_key and username")
	}

	if n := c.Notify.Webhook; n.Enabled && n.URL == "" {
		return fmt.Errorf("notify.webhook requires url")
	}
	if n := c.Notify.Gotify; n.Enabled && (n.URL == "" || n.Token == "") {
		return fmt.Errorf("notify.gotify requires url and token")
	}
	if n := c.Notify.Ntfy; n.Enabled && (n.URL == "" || n.Topic == "") {
		return fmt.Errorf("notify.ntfy requires url and topic")
	}

	for hook, rules := range c.Transform.Hooks {
		switch hook {
		case "precompare", "candidate", "existing", "postcompare":
		default:
			return fmt.Errorf("transform.hooks: unknown hook %q", hook)
		}
		for i, r := range rules {
			switch r.Field {
			case "title", "artists", "albumartists", "album":
			default:
				return fmt.Errorf("transform.hooks.%s[%d]: unknown field %q", hook, i, r.Field)
			}
			if r.Search == "" {
				return fmt.Errorf("transform.hooks.%s[%d]: search must not be empty", hook, i)
			}
		}
	}
	return nil
}
