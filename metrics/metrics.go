// Package metrics exposes pipeline run outcomes as Prometheus metrics.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brunobiangulo/docgraph"
)

// Recorder implements docgraph.Observer.
type Recorder struct {
	runs       *prometheus.CounterVec
	triples    prometheus.Counter
	statements prometheus.Counter
	nodes      prometheus.Counter
	edges      prometheus.Counter
	duration   prometheus.Histogram
}

var _ docgraph.Observer = (*Recorder)(nil)

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "docgraph_runs_total",
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
		triples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docgraph_triples_extracted_total",
			Help: "Triples extracted before deduplication.",
		}),
		statements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docgraph_statements_submitted_total",
			Help: "Statements submitted to the graph store.",
		}),
		nodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docgraph_nodes_created_total",
			Help: "Nodes created in the graph store.",
		}),
		edges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "docgraph_edges_created_total",
			Help: "Edges created in the graph store.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "docgraph_run_duration_seconds",
			Help:    "Wall time of a pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}

	for _, c := range []prometheus.Collector{r.runs, r.triples, r.statements, r.nodes, r.edges, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(_ context.Context, res docgraph.Result) {
	r.runs.WithLabelValues(string(res.Status)).Inc()
	r.triples.Add(float64(res.TriplesExtracted))
	r.statements.Add(float64(res.StatementsSubmitted))
	r.nodes.Add(float64(res.NodesAffected))
	r.edges.Add(float64(res.EdgesAffected))
	r.duration.Observe(res.Elapsed.Seconds())
}
