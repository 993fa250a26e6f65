package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Zone tags are derived from IANA names even on hosts without zoneinfo.
	_ "time/tzdata"

	"github.com/ParachuteTeam/Parachute/internal/calendar"
	"github.com/ParachuteTeam/Parachute/internal/config"
	"github.com/ParachuteTeam/Parachute/internal/interval"
	appLog "github.com/ParachuteTeam/Parachute/internal/log"
	"github.com/ParachuteTeam/Parachute/internal/maintenance"
	"github.com/ParachuteTeam/Parachute/internal/schedule"
	"github.com/ParachuteTeam/Parachute/internal/store"
	"github.com/ParachuteTeam/Parachute/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; set flags override the config file.
type flagConfig struct {
	configPath string
	listen     string
	dbPath     string
	purgeOnce  bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.dbPath != "" {
		conf.DatabasePath = flags.dbPath
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("parachute starting", "version", version)

	policy, err := interval.ParseAlignPolicy(conf.AlignPolicy)
	if err != nil {
		appLog.Error("invalid align policy", err, "align_policy", conf.AlignPolicy)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"database_path", conf.DatabasePath,
		"default_zone", conf.DefaultZone,
		"step_minutes", conf.StepMinutes,
		"align_policy", policy.String(),
		"retention_days", conf.RetentionDays,
		"purge", conf.PurgeCron,
		"basic_auth", conf.BasicAuth != nil,
	)

	st, err := store.Open(conf.DatabasePath)
	if err != nil {
		appLog.Error("failed to open database", err, "path", conf.DatabasePath)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			appLog.Error("failed to close database", err)
		}
	}()

	svc := schedule.New(st, schedule.Options{
		Step:           time.Duration(conf.StepMinutes) * time.Minute,
		AlignPolicy:    policy,
		JoinCodeLength: conf.JoinCodeLength,
		DefaultZone:    conf.DefaultZone,
		Fetcher:        calendar.NewFetcher(conf.ICSCacheDir, nil),
	})

	purger, err := maintenance.New(conf.PurgeCron, time.Duration(conf.RetentionDays)*24*time.Hour, svc)
	if err != nil {
		appLog.Error("failed to schedule purge", err)
		os.Exit(1)
	}

	if flags.purgeOnce {
		n, err := purger.RunNow(context.Background())
		if err != nil {
			appLog.Error("purge failed", err)
			os.Exit(1)
		}
		appLog.Info("purge finished", "count", n)
		return
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	purger.Start()

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           web.NewServer(conf, svc).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		appLog.Info("signal received, shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	purger.Stop(shutdownCtx)
	appLog.Info("parachute exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/parachute/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.dbPath, "db", "", "SQLite database path (overrides config if set)")
	flag.BoolVar(&cfg.purgeOnce, "purge-once", false, "Purge expired events once and exit")

	flag.Parse()

	return cfg
}
