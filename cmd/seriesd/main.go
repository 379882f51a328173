package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"seriesd/internal/config"
	"seriesd/internal/jobs"
	appLog "seriesd/internal/log"
	"seriesd/internal/series"
	"seriesd/internal/store"
	"seriesd/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	if flags.debug {
		appLog.SetLevel(appLog.LevelDebug)
	}
	appLog.Info("seriesd starting", "version", "0.1.0")

	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"horizon_months", conf.HorizonMonths,
		"extend_lead_months", conf.ExtendLeadMonths,
		"extend_cron", conf.ExtendCron,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	st, err := store.Open(ctx, conf.DatabaseURL)
	if err != nil {
		appLog.Error("failed to open database", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		appLog.Error("failed to apply schema", err)
		os.Exit(1)
	}

	svc, err := series.New(st, series.Options{
		Timezone:         conf.Timezone,
		HorizonMonths:    conf.HorizonMonths,
		ExtendLeadMonths: conf.ExtendLeadMonths,
		SlugRetries:      conf.SlugRetries,
	})
	if err != nil {
		appLog.Error("failed to build series service", err)
		os.Exit(1)
	}

	if flags.once {
		// Single extension pass, then exit. Useful for external schedulers.
		if _, err := svc.ExtendDue(ctx); err != nil {
			appLog.Error("extension pass failed", err)
			os.Exit(1)
		}
		return
	}

	runner := jobs.NewRunner(ctx)
	if _, err := runner.Add(conf.ExtendCron, "extend-series", func(jobCtx context.Context) error {
		_, err := svc.ExtendDue(jobCtx)
		return err
	}); err != nil {
		appLog.Error("failed to schedule extension job", err, "spec", conf.ExtendCron)
		os.Exit(1)
	}
	runner.Start()
	defer runner.Stop()

	if err := web.Serve(ctx, conf, svc); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("seriesd exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/seriesd/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one extension pass and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}
