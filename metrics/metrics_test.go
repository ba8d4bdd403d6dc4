package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/docgraph"
	"github.com/brunobiangulo/docgraph/sink"
)

func TestRecorderObserveRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := New(reg)
	require.NoError(t, err)

	ctx := context.Background()
	rec.ObserveRun(ctx, docgraph.Result{
		Status:              docgraph.StatusOK,
		TriplesExtracted:    6,
		StatementsSubmitted: 6,
		NodesAffected:       10,
		EdgesAffected:       6,
		Elapsed:             20 * time.Millisecond,
	})
	rec.ObserveRun(ctx, docgraph.Result{Status: docgraph.StatusNoTriples})

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.runs.WithLabelValues("no_triples")))
	assert.Equal(t, 6.0, testutil.ToFloat64(rec.triples))
	assert.Equal(t, 10.0, testutil.ToFloat64(rec.nodes))
	assert.Equal(t, 6.0, testutil.ToFloat64(rec.edges))

	expected := `
# HELP docgraph_statements_submitted_total Statements submitted to the graph store.
# TYPE docgraph_statements_submitted_total counter
docgraph_statements_submitted_total 6
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "docgraph_statements_submitted_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.duration))
}

func TestRecorderDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestRecorderAsPipelineObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := New(reg)
	require.NoError(t, err)

	p, err := docgraph.New(docgraph.DefaultConfig(), docgraph.WithObserver(rec))
	require.NoError(t, err)

	mem := sink.NewMemory()
	p.Run(context.Background(), "프로젝트 AAA은 Python 기술을 사용한다.", mem)
	p.Run(context.Background(), "프로젝트 AAA은 Python 기술을 사용한다.", mem)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.runs.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.nodes))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.edges))
}
