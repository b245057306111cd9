// frontdeskd is the clinic front-desk coordination daemon. It owns the
// persisted patient/ticket dataset, polls the intake channel for new
// patient messages in the background, and serves the dashboard API.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/clintariac/frontdesk/internal/api"
	"github.com/clintariac/frontdesk/internal/config"
	"github.com/clintariac/frontdesk/internal/desk"
	"github.com/clintariac/frontdesk/internal/intake"
	"github.com/clintariac/frontdesk/internal/notify"
	"github.com/clintariac/frontdesk/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML/JSON config file")
		port       = flag.Int("port", 0, "dashboard API port (overrides config)")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("config load failed", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.ListenPort = *port
	}
	if *verbose {
		cfg.Verbose = true
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	calendar, err := cfg.Calendar()
	if err != nil {
		logger.Error("invalid business hours", "err", err)
		os.Exit(1)
	}

	var gateway intake.Gateway
	if cfg.Intake.AMQPURL != "" {
		amqpGW, err := intake.DialAMQP(intake.AMQPConfig{
			URL:      cfg.Intake.AMQPURL,
			Queue:    cfg.Intake.Queue,
			Prefetch: cfg.Intake.Prefetch,
		}, logger)
		if err != nil {
			logger.Error("intake connect failed", "err", err)
			os.Exit(1)
		}
		defer amqpGW.Close()
		gateway = amqpGW
	} else {
		logger.Warn("no intake channel configured, running with an empty in-process queue")
		gateway = intake.NewQueueGateway()
	}

	mgr := desk.New(store.NewFileStore(cfg.StoragePath), gateway, desk.Config{
		PollInterval: cfg.PollInterval(),
		Calendar:     calendar,
		DedupeIntake: cfg.Intake.Dedupe,
	})
	mgr.SetLogger(logger)

	// Storage failures have no safe continuation: report and exit.
	mgr.OnStorageError(func(err error) {
		logger.Error("unrecoverable storage failure", "err", err)
		os.Exit(1)
	})
	mgr.OnIntakeError(func(err error) {
		logger.Warn("intake channel failure, keeping cadence", "err", err)
	})

	notifier := notify.New(notify.Config{URL: cfg.WebhookURL, Logger: logger})
	mgr.Subscribe(notifier.Updated)

	if err := mgr.LoadData(); err != nil {
		// OnStorageError already exited; this covers observer removal.
		os.Exit(1)
	}
	mgr.StartTask()

	srv := api.NewServer(mgr, cfg.ListenPort, logger)
	if err := srv.Serve(); err != nil {
		logger.Error("server shutdown error", "err", err)
		os.Exit(1)
	}
}
