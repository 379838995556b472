package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/juju/clock"
	"golang.org/x/sync/errgroup"

	"github.com/Semprini/data-products/ducklake-init/internal/bootstrap"
	"github.com/Semprini/data-products/ducklake-init/internal/config"
)

// runBootstrap attaches the lake and then idles. The status API, when
// enabled, serves for the whole lifetime so that /ready reflects progress.
func runBootstrap(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildAppContext(sigCtx, cfg)
	if err != nil {
		return fmt.Errorf("building app context: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		app.Close(shutCtx)
	}()

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if app.router != nil {
		startStatusServer(gctx, g, app.router.Handler(), cfg.Status)
	}

	result, runErr := app.driver.Run(gctx)
	printResult(result)
	if runErr != nil {
		cancel()
		if err := g.Wait(); err != nil {
			slog.Warn("status server stopped with error", "err", err)
		}
		return fmt.Errorf("bootstrap failed: %w", runErr)
	}

	g.Go(func() error {
		return app.driver.Idle(gctx, clock.WallClock, cfg.Idle.Interval)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("ducklake-init stopped")
	return nil
}

func startStatusServer(ctx context.Context, g *errgroup.Group, handler http.Handler, cfg config.StatusConfig) {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		slog.Info("status server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		return nil
	})
}

func printResult(result *bootstrap.Result) {
	if result == nil {
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", result.Status)
	}
}
