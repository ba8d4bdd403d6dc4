package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brunobiangulo/docgraph"
	"github.com/brunobiangulo/docgraph/metrics"
	"github.com/brunobiangulo/docgraph/parser"
	"github.com/brunobiangulo/docgraph/sink"
	"github.com/brunobiangulo/docgraph/store"
)

// app holds the collaborators a command needs. Everything opened here is
// released by close.
type app struct {
	cfg      docgraph.Config
	pipeline *docgraph.Pipeline
	sink     sink.Sink
	store    *store.Store // non-nil when the sink is the SQLite store
	registry *prometheus.Registry
	recorder *metrics.Recorder
	closers  []func() error
}

// newPipeline builds the pipeline with the run log and metrics observers
// that apply to the opened sink.
func (a *app) newPipeline(opts ...docgraph.Option) (*docgraph.Pipeline, error) {
	if a.store != nil {
		opts = append(opts, docgraph.WithObserver(runLogger{a.store}))
	}
	if a.recorder != nil {
		opts = append(opts, docgraph.WithObserver(a.recorder))
	}
	p, err := docgraph.New(a.cfg, opts...)
	if err != nil {
		return nil, err
	}
	a.pipeline = p
	return p, nil
}

// openSink connects the configured graph store.
func (a *app) openSink(ctx context.Context) (sink.Sink, error) {
	var (
		s   sink.Sink
		err error
	)
	switch strings.ToLower(a.cfg.Sink) {
	case docgraph.SinkNeo4j:
		var n *sink.Neo4j
		n, err = sink.OpenNeo4j(ctx, a.cfg.Neo4j)
		s = n
	case docgraph.SinkSQLite:
		path := a.cfg.SQLite.ResolveDBPath()
		var st *store.Store
		st, err = store.New(path)
		if err == nil {
			slog.Info("store: opened", "path", path)
			a.store = st
			s = st
		}
	case docgraph.SinkMemory:
		s = sink.NewMemory()
	default:
		err = fmt.Errorf("%w: unknown sink %q", docgraph.ErrInvalidConfig, a.cfg.Sink)
	}
	if err != nil {
		return nil, err
	}
	a.sink = s
	a.closers = append(a.closers, s.Close)
	return s, nil
}

// ensureConstraints creates per-label uniqueness constraints when the sink
// is Neo4j and the config asks for them.
func (a *app) ensureConstraints(ctx context.Context) error {
	n, ok := a.sink.(*sink.Neo4j)
	if !ok || !a.cfg.EnsureConstraints || a.pipeline == nil {
		return nil
	}
	return n.EnsureConstraints(ctx, a.pipeline.Extractor().Labels())
}

// startMetrics registers the run recorder and, when addr is set, serves
// /metrics until close.
func (a *app) startMetrics(addr string) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rec, err := metrics.New(a.registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}
	a.recorder = rec

	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 10 * time.Second}
	go func() {
		slog.Info("metrics: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics: server error", "error", err)
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}

func (a *app) textSource() docgraph.TextSource {
	return parser.NewRegistry()
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// runLogger records every run in the SQLite runs table.
type runLogger struct {
	s *store.Store
}

func (l runLogger) ObserveRun(_ context.Context, r docgraph.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := l.s.LogRun(ctx, store.Run{
		ID:                  r.RunID,
		Source:              r.Source,
		Status:              string(r.Status),
		Succeeded:           r.Succeeded,
		TriplesExtracted:    r.TriplesExtracted,
		TriplesAfterDedup:   r.TriplesAfterDedup,
		StatementsSubmitted: r.StatementsSubmitted,
		NodesCreated:        r.NodesAffected,
		EdgesCreated:        r.EdgesAffected,
		Error:               r.ErrorMessage(),
		ElapsedMs:           r.Elapsed.Milliseconds(),
		ArtifactPath:        r.ArtifactPath,
	})
	if err != nil {
		slog.Warn("store: logging run failed", "run_id", r.RunID, "error", err)
	}
}
