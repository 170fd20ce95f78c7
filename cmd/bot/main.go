package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"avisobot/internal/command"
	"avisobot/internal/config"
	"avisobot/internal/observability/pprof"
	"avisobot/internal/reminder"
	"avisobot/internal/storage"
	"avisobot/internal/transport"
	"avisobot/internal/transport/dryrun"
	"avisobot/internal/transport/telegram"
	"avisobot/internal/transport/twilio"
	"avisobot/internal/webhook"
	"avisobot/pkg/logx"
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
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console == nil || *cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer log.Close()
	mgr.SetLogger(log)

	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeoutDuration(),
	}, log.With(logx.String("svc", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	sender, err := buildSender(cfg, log)
	if err != nil {
		return err
	}

	quotes := reminder.NewQuoteSource(cfg.Dispatch.Quotes, cfg.Dispatch.QuoteSeed)
	disp := reminder.NewDispatcher(store, sender, quotes, dispatchConfig(cfg), log.With(logx.String("svc", "dispatch")))
	handler := command.NewHandler(store, command.Config{
		Limits:          cfg.Dispatch.Limits(),
		DefaultTimezone: cfg.Dispatch.DefaultTimezone,
	}, log.With(logx.String("svc", "command")))

	dbg := pprof.New(log.With(logx.String("svc", "pprof")))
	dbg.Apply(ctx, pprofConfig(cfg))
	defer dbg.Stop(context.Background())

	// Live-reload the tunables; cadence and transport changes need a restart.
	mgr.OnChange(func(c *config.Config) {
		disp.Apply(dispatchConfig(c))
		handler.Apply(command.Config{
			Limits:          c.Dispatch.Limits(),
			DefaultTimezone: c.Dispatch.DefaultTimezone,
		})
		if p, ok := quotes.(interface{ SetPool([]string) }); ok {
			p.SetPool(c.Dispatch.Quotes)
		}
		dbg.Apply(ctx, pprofConfig(c))
	})
	go func() {
		if err := mgr.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	c := cron.New()
	if _, err := c.AddFunc(cfg.Dispatch.Cadence, func() {
		rep, err := disp.RunPeriodic(ctx)
		switch {
		case err == nil:
		case err == reminder.ErrRunInProgress:
			log.Debug("dispatch tick skipped: previous run still active")
		default:
			log.Error("dispatch run failed", logx.Err(err))
		}
		_ = rep
	}); err != nil {
		return fmt.Errorf("dispatch cadence %q: %w", cfg.Dispatch.Cadence, err)
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	var srv *webhook.Server
	if cfg.Webhook.Enabled == nil || *cfg.Webhook.Enabled {
		srv = webhook.New(webhook.Config{Addr: cfg.Webhook.Addr}, handler, log.With(logx.String("svc", "webhook")))
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("webhook server failed", logx.Err(err))
			}
		}()
		log.Info("webhook listening", logx.String("addr", cfg.Webhook.Addr))
	}

	log.Info("avisobot started",
		logx.String("mode", cfg.Transport.Mode),
		logx.String("cadence", cfg.Dispatch.Cadence),
		logx.Int("fire_hour", *cfg.Dispatch.FireHour))

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdogLoop(ctx)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if srv != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.Warn("webhook shutdown", logx.Err(err))
		}
	}
	return nil
}

func buildSender(cfg *config.Config, log logx.Logger) (transport.Sender, error) {
	if cfg.Transport.Mode != "live" {
		return dryrun.New(log.With(logx.String("svc", "dryrun"))), nil
	}

	router := transport.NewRouter()
	router.Register("whatsapp:", twilio.New(twilio.Config{
		AccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		AuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		From:       cfg.Transport.WhatsApp.From,
	}, log.With(logx.String("svc", "twilio"))))

	if cfg.Transport.Telegram.Enabled {
		tg, err := telegram.New(telegram.Config{Token: os.Getenv("TELEGRAM_TOKEN")},
			log.With(logx.String("svc", "telegram")))
		if err != nil {
			return nil, err
		}
		router.Register("telegram:", tg)
	}
	return router, nil
}

func pprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:              cfg.Debug.Pprof,
		Addr:                 cfg.Debug.PprofAddr,
		BlockProfileRate:     cfg.Debug.BlockProfileRate,
		MutexProfileFraction: cfg.Debug.MutexProfileFraction,
	}
}

func dispatchConfig(cfg *config.Config) reminder.Config {
	return reminder.Config{
		FireHour:        *cfg.Dispatch.FireHour,
		DefaultTimezone: cfg.Dispatch.DefaultTimezone,
		Limits:          cfg.Dispatch.Limits(),
		RatePerSec:      cfg.Transport.RatePerSec,
	}
}

// watchdogLoop pings systemd's watchdog at half the configured interval when
// running under WatchdogSec.
func watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
