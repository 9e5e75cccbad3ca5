// Command mailrag indexes a mailbox export and drafts grounded replies.
//
// Usage:
//
//	mailrag serve                    ops router (/healthz, /readyz, /metrics, /admin/...)
//	mailrag index [-mode catchup]    one indexing pass over emails.path
//	mailrag reply -id N              draft a reply for email N and print it
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/config"
	logpkg "github.com/kailas-cloud/mailrag/internal/logger"
	"github.com/kailas-cloud/mailrag/internal/metrics"
	chiTransport "github.com/kailas-cloud/mailrag/internal/transport/chi"
	indexinguc "github.com/kailas-cloud/mailrag/internal/usecase/indexing"
	"github.com/kailas-cloud/mailrag/internal/version"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	metrics.Register(prometheus.DefaultRegisterer)

	mode := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		mode, args = args[0], args[1:]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting mailrag",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.String("mode", mode),
		zap.String("storage_driver", cfg.Storage.Driver),
	)

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise", zap.Error(err))
	}
	defer a.close()

	switch mode {
	case "serve":
		err = runServe(ctx, a)
	case "index":
		err = runIndex(ctx, a, args)
	case "reply":
		err = runReply(ctx, a, args)
	default:
		err = fmt.Errorf("unknown mode %q (want serve, index or reply)", mode)
	}
	if err != nil {
		logger.Error("Command failed", zap.String("mode", mode), zap.Error(err))
		a.close()
		_ = logger.Sync()
		os.Exit(1) //nolint:gocritic // cleanup done explicitly above
	}
}

func runServe(ctx context.Context, a *app) error {
	if a.cfg.Emails.IndexOnRun {
		if _, err := a.index(ctx, indexinguc.Mode(a.cfg.Emails.IndexMode)); err != nil {
			a.logger.Warn("Startup indexing failed", zap.Error(err))
		}
	}

	handler := chiTransport.NewRouter(chiTransport.Deps{
		Health:   a.health,
		Replier:  a.replier,
		Index:    a.index,
		Stats:    a.store,
		Usage:    a.usage,
		Gatherer: prometheus.DefaultGatherer,
		APIKeys:  a.cfg.Auth.APIKeys,
		Logger:   a.logger,
	})

	addr := fmt.Sprintf(":%d", a.cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	a.logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("Server stopped gracefully")
	return nil
}

func runIndex(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	mode := fs.String("mode", a.cfg.Emails.IndexMode, "catchup or reindex")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rep, err := a.index(ctx, indexinguc.Mode(*mode))
	if err != nil {
		return err
	}
	fmt.Printf("run %s (%s): %d/%d indexed, %d skipped, %d failed in %s\n",
		rep.RunID, rep.Mode, rep.Indexed, rep.Total, rep.Skipped, rep.Failed, rep.Duration.Round(time.Millisecond))
	if rep.Interrupted {
		return errors.New("indexing interrupted")
	}
	return nil
}

func runReply(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("reply", flag.ContinueOnError)
	id := fs.Int64("id", 0, "email id to reply to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return errors.New("reply: -id must be a positive email id")
	}

	sug, err := a.replier.SuggestForID(ctx, *id)
	if err != nil {
		return err
	}
	a.logger.Info("Reply drafted",
		zap.Int64("email_id", *id),
		zap.String("path", string(sug.Path())),
		zap.Int("sources", len(sug.Sources())),
	)
	fmt.Println(sug.Text())
	return nil
}
