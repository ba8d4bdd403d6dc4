package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app, flags *globalFlags) *cobra.Command {
	var addr, docRoot string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Long: `Serve the pipeline over HTTP.

Routes:
  POST /run       multipart "file" upload, or JSON {"text": ...} / {"path": ...}
                  ("path" requires --doc-root and must stay inside it)
  POST /compile   JSON {"text": ...}, returns statements without loading them
  GET  /runs      recent runs (sqlite sink only)
  GET  /health
  GET  /metrics

DOCGRAPH_API_KEY enables bearer-token auth; DOCGRAPH_CORS_ORIGINS sets
allowed CORS origins.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// Metrics share the API listener unless --metrics-addr is set.
			if err := a.startMetrics(flags.metricsAddr); err != nil {
				return err
			}
			s, err := a.openSink(ctx)
			if err != nil {
				return err
			}
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			if err := a.ensureConstraints(ctx); err != nil {
				return err
			}

			h := &handler{pipeline: p, source: a.textSource(), sink: s, store: a.store, docRoot: docRoot}
			mux := h.routes()
			if flags.metricsAddr == "" {
				mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
			}

			// Middleware chain: recovery -> cors -> auth -> logging -> mux
			var handler http.Handler = mux
			handler = logMiddleware(handler)
			handler = authMiddleware(os.Getenv("DOCGRAPH_API_KEY"), handler)
			handler = corsMiddleware(os.Getenv("DOCGRAPH_CORS_ORIGINS"), handler)
			handler = recoveryMiddleware(handler)

			srv := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 0, // document runs can be long
				IdleTimeout:  120 * time.Second,
			}
			return serve(ctx, srv)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&docRoot, "doc-root", "", `directory JSON {"path"} requests may read from (disabled when empty)`)
	return cmd
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		slog.Info("http: server starting", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("http: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("http: server stopped")
	return nil
}
