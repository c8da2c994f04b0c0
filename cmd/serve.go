package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperboria-dev/cjdns/internal/admin"
	"github.com/hyperboria-dev/cjdns/internal/audit"
	"github.com/hyperboria-dev/cjdns/internal/auth"
	"github.com/hyperboria-dev/cjdns/internal/config"
	"github.com/hyperboria-dev/cjdns/internal/database"
	"github.com/hyperboria-dev/cjdns/internal/logging"
	"github.com/hyperboria-dev/cjdns/internal/logstream"
	"github.com/hyperboria-dev/cjdns/internal/ratelimit"
	"github.com/hyperboria-dev/cjdns/internal/redis"
	"github.com/hyperboria-dev/cjdns/internal/server"
)

// authFailureLimit is how many bad tokens one address may present per hour.
const authFailureLimit = 20

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin interface",
	Long:  `Start the admin interface on ADMIN_ADDR (default ` + config.DefaultAdminAddr + `)`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overrides ADMIN_ADDR")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.AdminAddr = serveAddr
	}

	// base never feeds subscriptions; everything on the delivery path logs to it.
	out := logstream.NewOutput(cfg.Log)
	defer out.Close()
	base := out.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streams := admin.NewStreams(256)
	adm := admin.New(base, streams)

	var (
		observer logging.Observer
		lister   server.AuditLister
		limiter  *ratelimit.RateLimiter
	)
	if cfg.Database != nil {
		db, err := database.Create(ctx, *cfg.Database)
		if err != nil {
			base.Error("Failed to connect to database", "error", err)
			return err
		}
		defer db.Close()
		rec := audit.NewRecorder(db, base)
		observer, lister = rec, rec
		limiter = ratelimit.New(db, authFailureLimit, time.Hour)
	}
	if cfg.Redis != nil {
		pub, err := redis.Dial(ctx, *cfg.Redis)
		if err != nil {
			base.Error("Failed to connect to Redis", "error", err)
			return err
		}
		defer pub.Close()
		adm.AddSink(pub)
	}

	broadcaster := logging.NewBroadcaster(adm, logging.Config{
		MaxSubscriptions: cfg.MaxSubscriptions,
		FileNameCount:    cfg.FileNameCount,
		Levels:           cfg.Levels,
		Observer:         observer,
		Logger:           base,
	})
	defer broadcaster.Close()
	logging.Register(adm, broadcaster)

	logger := out.Broadcasting(broadcaster)
	slog.SetDefault(logger)

	var issuer *auth.Issuer
	if cfg.AdminPassword != "" {
		if issuer, err = auth.NewIssuer(cfg.AdminPassword); err != nil {
			return err
		}
	} else {
		logger.Warn("ADMIN_PASSWORD is not set, admin interface is unauthenticated")
	}

	srvCfg := server.Config{
		Addr:        cfg.AdminAddr,
		Admin:       adm,
		Streams:     streams,
		Broadcaster: broadcaster,
		Issuer:      issuer,
		Audit:       lister,
		Logger:      logger,
	}
	if limiter != nil {
		srvCfg.Limiter = limiter
	}
	srv := server.New(srvCfg)

	cleanup := time.NewTicker(time.Hour)
	defer cleanup.Stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	go func() {
		for {
			select {
			case <-ctx.Done():
				logger.Info("Received shutdown signal")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("Server shutdown error", "error", err)
				}
				return
			case <-cleanup.C:
				if limiter == nil {
					continue
				}
				if err := limiter.CleanupOldAttempts(ctx); err != nil {
					logger.Warn("Failed to clean up auth failures", "error", err)
				}
			case <-hup:
				if err := out.Rotate(); err != nil {
					logger.Error("Failed to rotate log file", "file", out.FilePath(), "error", err)
				} else {
					logger.Info("Log file rotated", "file", out.FilePath())
				}
			}
		}
	}()

	logger.Info("Starting admin interface", "config", cfg)
	if err := srv.Start(); err != nil {
		logger.Error("Server error", "error", err)
		return err
	}
	return nil
}
