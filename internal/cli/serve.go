package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0x6d61/sec360/internal/api"
	"github.com/0x6d61/sec360/internal/config"
	"github.com/0x6d61/sec360/internal/session"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session API server",
	Long: `Serve starts the HTTP API for practice sessions, one-off scans, records and
the leaderboard. Sessions interrupted by a previous shutdown are recovered
before the listener opens. Idle sessions are swept in the background.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		cfg.ListenAddr = addr
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	cat, scorer, err := loadEngine(cfg)
	if err != nil {
		logger.Error("pattern catalog rejected, refusing to start", "path", cfg.CatalogPath, "error", err)
		return err
	}
	logger.Info("pattern catalog loaded", "version", cat.Version(), "rules", cat.Len())

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	mgr := session.NewManager(cat, scorer, st,
		session.WithLogger(logger),
		session.WithIdleThreshold(cfg.IdleThreshold()),
		session.WithSweepInterval(cfg.SweepInterval()),
		session.WithPersistOptions(persistOptions(cfg.Persistence)),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := mgr.Recover(ctx)
	if err != nil {
		return err
	}
	logger.Info("sessions recovered",
		"restored", stats.Restored,
		"timed_out", stats.TimedOut,
		"completed", stats.Completed,
	)

	handlers := api.NewHandlers(mgr, cat, scorer, st,
		api.WithLogger(logger),
		api.WithSubmitRateLimit(cfg.API.SubmitRatePerSecond, cfg.API.SubmitBurst),
		api.WithMaxCodeBytes(cfg.API.MaxCodeBytes),
		api.WithMinSessions(cfg.Leaderboard.MinSessions),
	)
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewRouter(handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mgr.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	// Records that could not be written during the run get one last attempt.
	// Whatever remains is still covered by its terminal checkpoint.
	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	mgr.FlushPending(flushCtx)
	if n := mgr.Pending(); n > 0 {
		logger.Warn("records left unwritten at shutdown", "count", n)
	}
	logger.Info("server stopped")
	return err
}

func persistOptions(p config.Persistence) session.PersistOptions {
	return session.PersistOptions{
		AttemptTimeout: p.AttemptTimeout(),
		Attempts:       p.MaxAttempts,
		InitialBackoff: p.InitialBackoff(),
		Factor:         p.BackoffFactor,
		MaxBackoff:     p.MaxBackoff(),
	}
}
