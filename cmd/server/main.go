// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cwadley/scrobblerelay/internal/clients/lastfm"
	"github.com/cwadley/scrobblerelay/internal/clients/listenbrainz"
	"github.com/cwadley/scrobblerelay/internal/clients/maloja"
	"github.com/cwadley/scrobblerelay/internal/config"
	"github.com/cwadley/scrobblerelay/internal/events"
	"github.com/cwadley/scrobblerelay/internal/httpapi"
	"github.com/cwadley/scrobblerelay/internal/logging"
	"github.com/cwadley/scrobblerelay/internal/models"
	"github.com/cwadley/scrobblerelay/internal/notify"
	"github.com/cwadley/scrobblerelay/internal/scrobble"
	"github.com/cwadley/scrobblerelay/internal/source"
	lbsource "github.com/cwadley/scrobblerelay/internal/sources/listenbrainz"
	"github.com/cwadley/scrobblerelay/internal/sources/subsonic"
	"github.com/cwadley/scrobblerelay/internal/sources/webhook"
	"github.com/cwadley/scrobblerelay/internal/supervisor"
	"github.com/cwadley/scrobblerelay/internal/transform"
)

// Set via ldflags at release build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	configPath := flag.String("config", "", "path to config file (overrides the search paths)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("scrobblerelay %s (%s)\n", version, commit)
		return
	}

	if err := run(*configPath); err != nil {
		logging.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	log := logging.With().Str("component", "main").Logger()
	log.Info().Str("version", version).Msg("scrobblerelay starting")

	bus := events.NewBus()
	defer bus.Close()

	notifier, err := buildNotifier(cfg.Notify)
	if err != nil {
		return err
	}
	pipeline, err := buildPipeline(cfg.Transform)
	if err != nil {
		return err
	}

	processors, err := buildProcessors(cfg, pipeline, bus, notifier)
	if err != nil {
		return err
	}

	// Every discovered play fans out to every client queue.
	sink := func(src string, play models.Play) {
		for _, p := range processors {
			p.Enqueue(src, play)
		}
	}

	manager, webhooks, err := buildSources(cfg, sink, bus, notifier)
	if err != nil {
		return err
	}

	api := httpapi.NewServer(httpapi.Options{
		Host:    cfg.Server.Host,
		Port:    cfg.Server.Port,
		Timeout: cfg.Server.Timeout,
	}, manager, processors, webhooks)

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	for _, p := range manager.Pollers() {
		tree.AddIngest(supervisor.NewPollerService(p))
	}
	for _, p := range processors {
		tree.AddDelivery(supervisor.NewProcessorService(p))
	}
	tree.AddDelivery(supervisor.NewSweeperService(processors, cfg.DeadLetter.SweepInterval))
	tree.AddAPI(&supervisor.Runner{Label: "event-log", Fn: events.NewLogSubscriber(bus).Run})
	tree.AddAPI(&supervisor.Runner{Label: "http-api", Fn: api.Run})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Int("sources", len(manager.Pollers())).Int("clients", len(processors)).Msg("pipeline assembled")
	return tree.Serve(ctx)
}

func buildNotifier(cfg config.NotifyConfig) (*notify.Multi, error) {
	var notifiers []notify.Notifier
	if cfg.Webhook.Enabled {
		notifiers = append(notifiers, notify.NewWebhook(notify.WebhookConfig{
			URL:       cfg.Webhook.URL,
			RateLimit: cfg.Webhook.RateLimit,
		}))
	}
	if cfg.Gotify.Enabled {
		g, err := notify.NewGotify(notify.GotifyConfig{URL: cfg.Gotify.URL, Token: cfg.Gotify.Token})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, g)
	}
	if cfg.Ntfy.Enabled {
		notifiers = append(notifiers, notify.NewNtfy(notify.NtfyConfig{
			URL:   cfg.Ntfy.URL,
			Topic: cfg.Ntfy.Topic,
			Token: cfg.Ntfy.Token,
		}))
	}
	return notify.NewMulti(notifiers...), nil
}

func buildPipeline(cfg config.TransformConfig) (*transform.Pipeline, error) {
	if len(cfg.Hooks) == 0 {
		return transform.NewEmptyPipeline(), nil
	}
	hooks := make(map[transform.Hook][]*transform.Rule, len(cfg.Hooks))
	for hook, rules := range cfg.Hooks {
		for _, rc := range rules {
			rule := &transform.Rule{
				Field:   transform.Field(rc.Field),
				Search:  rc.Search,
				Replace: rc.Replace,
			}
			if rc.When != (config.WhenConfig{}) {
				rule.When = &transform.When{
					Title:  rc.When.Title,
					Artist: rc.When.Artist,
					Album:  rc.When.Album,
				}
			}
			hooks[transform.Hook(hook)] = append(hooks[transform.Hook(hook)], rule)
		}
	}
	return transform.NewPipeline(hooks)
}

func buildProcessors(cfg *config.Config, pipeline *transform.Pipeline, bus *events.Bus, notifier *notify.Multi) ([]*scrobble.Processor, error) {
	opts := scrobble.Options{
		CheckExistingScrobbles: cfg.Clients.Options.CheckExistingScrobbles,
		Tolerance:              cfg.Clients.Options.Tolerance,
		ScrobbleDelay:          cfg.Clients.Options.ScrobbleDelay,
		ScrobbleSleep:          cfg.Clients.Options.ScrobbleSleep,
		MaxProcessingRetries:   cfg.Clients.Options.MaxProcessingRetries,
		RetryBackoff:           cfg.Clients.Options.RetryBackoff,
		DeadLetterRetryCeiling: cfg.Clients.Options.DeadLetterRetryCeiling,
		HistoryLimit:           cfg.Clients.Options.HistoryLimit,
	}

	var clients []scrobble.Client
	if c := cfg.Clients.ListenBrainz; c.Enabled {
		client, err := listenbrainz.New(listenbrainz.Config{
			BaseURL:  c.URL,
			Token:    c.Token,
			Username: c.Username,
			Timeout:  c.Timeout,
		})
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if c := cfg.Clients.Maloja; c.Enabled {
		client, err := maloja.New(maloja.Config{BaseURL: c.URL, APIKey: c.APIKey, Timeout: c.Timeout})
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	if c := cfg.Clients.Lastfm; c.Enabled {
		client, err := lastfm.New(lastfm.Config{
			APIKey:     c.APIKey,
			APISecret:  c.APISecret,
			SessionKey: c.SessionKey,
			Username:   c.Username,
		})
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}

	processors := make([]*scrobble.Processor, 0, len(clients))
	for _, client := range clients {
		processors = append(processors, scrobble.NewProcessor(client, opts, pipeline, bus, notifier))
	}
	return processors, nil
}

func buildSources(cfg *config.Config, sink source.SinkFunc, bus *events.Bus, notifier *notify.Multi) (*source.Manager, map[string]*webhook.Source, error) {
	opts := source.Options{
		Interval:        cfg.Sources.Poll.Interval,
		MaxInterval:     cfg.Sources.Poll.MaxInterval,
		CheckActiveFor:  cfg.Sources.Poll.CheckActiveFor,
		MaxPollRetries:  cfg.Sources.Poll.MaxPollRetries,
		RetryMultiplier: cfg.Sources.Poll.RetryMultiplier,
	}

	manager := source.NewManager()
	if s := cfg.Sources.ListenBrainz; s.Enabled {
		src, err := lbsource.New(lbsource.Config{
			Name:     s.Name,
			BaseURL:  s.URL,
			Token:    s.Token,
			Username: s.Username,
			Limit:    s.Limit,
			Timeout:  s.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := manager.Add(source.NewPoller(src, opts, sink, bus, notifier)); err != nil {
			return nil, nil, err
		}
	}
	if s := cfg.Sources.Subsonic; s.Enabled {
		src, err := subsonic.New(subsonic.Config{
			Name:     s.Name,
			BaseURL:  s.URL,
			Username: s.Username,
			Password: s.Password,
			Timeout:  s.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := manager.Add(source.NewPoller(src, opts, sink, bus, notifier)); err != nil {
			return nil, nil, err
		}
	}

	webhooks := make(map[string]*webhook.Source)
	if s := cfg.Sources.Webhook; s.Enabled {
		hook := webhook.New(s.Name, sink)
		webhooks[hook.Name()] = hook
	}
	return manager, webhooks, nil
}
