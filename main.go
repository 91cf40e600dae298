package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bodul/xword/internal/config"
	"github.com/bodul/xword/internal/library"
	"github.com/bodul/xword/internal/logging"
	"github.com/bodul/xword/internal/progress"
)

const shutdownTimeout = 10 * time.Second

var (
	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "xword",
	Short:         "Daily crossword server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded

		logger, err = logging.New(cfg.LogLevel, cfg.DevLog)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.Bool("log-dev", false, "human-readable console logs")
	pf.String("db", "", "SQLite progress database (default in memory)")

	serveCmd.Flags().String("port", "", "listen port")
	serveCmd.Flags().String("puzzles", "", "directory of puzzle files")

	rootCmd.AddCommand(serveCmd, analyzeCmd, validateCmd, pruneCmd)
}

// applyFlags lets explicitly set flags override the environment.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	str := func(name string, dst *string) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			*dst = f.Value.String()
		}
	}
	str("log-level", &c.LogLevel)
	str("db", &c.DBPath)
	str("port", &c.Port)
	str("puzzles", &c.PuzzleDir)
	if f := cmd.Flags().Lookup("log-dev"); f != nil && f.Changed {
		c.DevLog = f.Value.String() == "true"
	}
}

// openProgress returns the SQLite store when a path is configured and an
// in-memory store otherwise.
func openProgress(ctx context.Context) (progress.Store, error) {
	if cfg.DBPath == "" {
		logger.Warn("XWORD_DB_PATH not set, progress is kept in memory")
		return progress.NewMemoryStore(), nil
	}
	st, err := progress.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Info("progress database ready", zap.String("path", cfg.DBPath))
	return st, nil
}

func serve(ctx context.Context) error {
	store, err := openProgress(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	lib := library.New(logger.Named("library"))
	if cfg.PuzzleDir != "" {
		if _, err := lib.LoadDir(cfg.PuzzleDir); err != nil {
			logger.Warn("puzzle library loaded with errors", zap.Error(err))
		}
	}

	var gemini *GeminiClient
	if cfg.ProjectID != "" {
		gemini, err = NewGeminiClient(ctx, vertexSettings(cfg), logger.Named("gemini"))
		if err != nil {
			return err
		}
		defer gemini.Close()
	} else {
		logger.Info("GCP_PROJECT_ID not set, image import disabled")
	}

	srv := NewServer(cfg, lib, store, gemini, logger.Named("http"))
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server started", zap.String("addr", "http://localhost:"+cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return srv.Janitor(gctx)
	})
	if cfg.PuzzleDir != "" {
		g.Go(func() error {
			return lib.Watch(gctx, cfg.PuzzleDir)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return errors.Join(httpSrv.Shutdown(shutdownCtx), srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "xword:", err)
		os.Exit(1)
	}
}
