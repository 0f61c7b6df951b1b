package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"notifyd/internal/config"
	"notifyd/internal/engine"
	"notifyd/internal/eventbus"
	"notifyd/internal/queue"
	"notifyd/internal/sender"
	"notifyd/internal/storage"
	logx "notifyd/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	boot := logx.NewConsole("info")

	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if errors.Is(err, os.ErrNotExist) {
		boot.Warn("config file not found; using defaults", logx.String("path", cfgPath))
		cfg = config.Default()
		mgr.Commit(cfg)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logxConfig(cfg))
	defer logSvc.Close()
	mgr.SetLogger(log)

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if store != nil {
		defer store.Close()
		log.Info("outcome journal enabled", logx.String("driver", cfg.Storage.Driver))
	}

	bus := eventbus.New()

	reg := sender.NewRegistry(sender.Config{
		SendTimeout: cfg.SendTimeout(),
		RatePerSec:  cfg.Senders.RatePerSec,
	}, log)
	sender.RegisterSimulated(reg, sender.SimulatedConfig{
		NetworkDelay: cfg.NetworkDelay(),
		EmailAPIKey:  cfg.Senders.EmailAPIKey,
		SMSAuthToken: cfg.Senders.SMSAuthToken,
	})

	q := queue.New(queue.Config{
		DefaultMaxRetries: cfg.Queue.DefaultMaxRetries,
		RetryBase:         cfg.RetryBase(),
	}, reg, log, bus)
	defer q.Close()

	eng := engine.New(engineConfig(cfg), q, log, bus, store)
	eng.Start(ctx)

	// Live reload: logging and driver settings follow the file.
	go func() { _ = mgr.Watch(ctx) }()
	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				logSvc.Apply(logxConfig(next))
				eng.Apply(ctx, engineConfig(next))
			}
		}
	}()

	go snapshotLoop(ctx, eng, log)

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("notifyd ready",
		logx.String("config", cfgPath),
		logx.Bool("journal", store != nil))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	eng.Stop(stopCtx)
	return nil
}

// snapshotLoop periodically logs the derived queue counters.
func snapshotLoop(ctx context.Context, eng *engine.Engine, log logx.Logger) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := eng.Snapshot()
			active, _ := eng.Workers()
			fields := []logx.Field{
				logx.Int("queued", s.Queued),
				logx.Int("scheduled", s.Scheduled),
				logx.Int("processing", s.Processing),
				logx.Int("delivered_today", s.DeliveredToday),
				logx.Int("failed_today", s.FailedToday),
				logx.Int("retries", s.Retries),
				logx.Int64("workers", active),
			}
			if s.OldestPending != nil {
				fields = append(fields, logx.Time("oldest_pending", *s.OldestPending))
			}
			log.Info("queue snapshot", fields...)
		}
	}
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.FileEnabled,
			Path:    cfg.Logging.FilePath,
		},
	}
}

func engineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		TickInterval: cfg.TickInterval(),
		Retention: engine.RetentionConfig{
			MaxAge:   cfg.RetentionMaxAge(),
			Schedule: cfg.Retention.Schedule,
		},
	}
}
