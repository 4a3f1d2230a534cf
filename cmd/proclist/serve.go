package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godlewis/process-list/internal/cache"
	"github.com/godlewis/process-list/internal/config"
	"github.com/godlewis/process-list/internal/journal"
	"github.com/godlewis/process-list/internal/journal/factory"
	"github.com/godlewis/process-list/internal/logger"
	"github.com/godlewis/process-list/internal/metrics"
	"github.com/godlewis/process-list/internal/query"
	"github.com/godlewis/process-list/internal/refresh"
	"github.com/godlewis/process-list/internal/server"
	"github.com/godlewis/process-list/internal/source"
	"github.com/godlewis/process-list/internal/ws"
)

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}

	log, level := cfg.Log.Build()
	slog.SetDefault(log)

	if err := metrics.RegisterDefault(); err != nil {
		log.Warn("failed to register metrics", "error", err)
	}

	src := source.NewSystem()
	snap := cache.New(cfg.TTL)
	coord := refresh.New(src, snap, refresh.Options{
		Interval:     cfg.RefreshInterval,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log,
	})
	facade := query.New(snap, src, coord, query.Options{
		WaitBudget:   cfg.FallbackWait,
		Recheck:      cfg.FallbackPoll,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       log,
	})

	deps := server.Deps{
		Cache:   snap,
		Coord:   coord,
		Query:   facade,
		Metrics: metrics.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())

	var writer *journal.Writer
	var janitor *journal.Janitor
	var cancelJournal func()
	if cfg.Journal.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.Journal.DSN)
		if err != nil {
			cancel()
			return fmt.Errorf("journal sink: %w", err)
		}
		writer = journal.NewWriter(sink, log)
		deps.Events = writer
		if reader, ok := sink.(journal.Reader); ok {
			deps.Journal = reader
		}
		if purger, ok := sink.(journal.Purger); ok {
			janitor, err = journal.NewJanitor(purger, cfg.Journal.Retention, cfg.Journal.PurgeSchedule, log)
			if err != nil {
				cancel()
				return err
			}
			janitor.Start()
		}
		var journalResults <-chan refresh.Result
		journalResults, cancelJournal = coord.Subscribe(16)
		go recordRefreshEvents(journalResults, writer)
		log.Info("journal enabled", "dsn", cfg.Journal.DSN, "retention", cfg.Journal.Retention)
	}

	hub := ws.New(snap, log)
	hubResults, cancelHub := coord.Subscribe(16)
	go hub.Run(ctx, hubResults)
	deps.Hub = hub

	coord.Start()

	srv, err := server.NewServer(cfg.Server.Listen, cfg.Server.BasePath, deps)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	log.Info("proclist daemon started", "listen", cfg.Server.Listen, "base_path", cfg.Server.BasePath)

	if configPath != "" {
		go func() {
			if err := config.Watch(ctx, configPath, log, func(next config.Config) {
				level.Set(logger.ParseLevel(next.Log.Level))
				snap.SetTTL(next.TTL)
				log.Info("config reloaded", "ttl", next.TTL, "log_level", next.Log.Level)
			}); err != nil {
				log.Warn("config watch stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	coord.Stop()
	cancelHub()
	if cancelJournal != nil {
		cancelJournal()
	}
	cancel()
	if janitor != nil {
		janitor.Stop()
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			log.Warn("journal close failed", "error", err)
		}
	}
	return srv.Close()
}

// recordRefreshEvents forwards refresh outcomes to the journal until the
// subscription closes.
func recordRefreshEvents(results <-chan refresh.Result, w *journal.Writer) {
	for res := range results {
		e := journal.Event{
			OccurredAt: res.At,
			Trigger:    string(res.Trigger),
			TookMS:     res.Took.Milliseconds(),
		}
		if res.Err != nil {
			e.Type = journal.EventRefreshFailed
			e.Error = res.Err.Error()
		} else {
			e.Type = journal.EventRefreshSucceeded
			e.Records = len(res.Records)
		}
		w.Enqueue(e)
	}
}
