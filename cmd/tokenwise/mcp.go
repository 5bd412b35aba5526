package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tokenwise-ai/tokenwise/pkg/mcp"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	var metricsListen string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the orchestrator as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, a *app) error {
				listen := a.cfg.Metrics.Listen
				if metricsListen != "" {
					listen = metricsListen
				}
				if listen != "" {
					stop := serveMetrics(a, listen)
					defer stop()
				}

				opts := []mcp.Option{mcp.WithLogger(a.logger.Named("mcp"))}
				if a.tracker != nil {
					opts = append(opts, mcp.WithLedger(a.tracker))
				}
				if a.enforcer != nil {
					opts = append(opts, mcp.WithBudget(a.enforcer))
				}

				a.logger.Info("mcp server starting", zap.String("version", version))
				return mcp.New(a.manager, version, opts...).Run(ctx, os.Stdin, os.Stdout)
			})
		},
	}
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "address for the Prometheus /metrics endpoint (overrides metrics.listen)")
	return cmd
}

// serveMetrics exposes the app's Prometheus registry until the returned
// function is called.
func serveMetrics(a *app, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", zap.Error(err))
		}
	}()
	a.logger.Info("metrics listening", zap.String("addr", addr))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
