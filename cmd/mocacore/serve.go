package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mocacore/internal/adapters/httpapi"
	"mocacore/internal/core"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var traceOps bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background reconciliation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var extra []core.ServiceOption
			if traceOps {
				extra = append(extra, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
			}
			a, err := openApp(ctx, root, extra...)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
	cmd.Flags().BoolVar(&traceOps, "trace", false, "write one JSON trace line per service operation to stderr")
	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg := a.cfg
	gin.SetMode(cfg.Server.Mode)

	sched, err := core.NewScheduler(a.svc, core.SchedulerConfig{
		ReconcileInterval: cfg.Reconcile.Interval,
		GCInterval:        cfg.Reconcile.GCInterval,
	})
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	router := httpapi.NewRouter(httpapi.NewHandlers(a.svc), httpapi.RouterOptions{
		Logger:  a.logger,
		Metrics: a.metrics.Handler(),
	})
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
