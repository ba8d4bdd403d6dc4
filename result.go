package docgraph

import (
	"context"
	"time"
)

// Status describes how a run ended.
type Status string

const (
	StatusOK               Status = "ok"
	StatusNoTriples        Status = "no_triples"
	StatusSourceReadFailed Status = "source_read_failed"
	StatusSinkRejected     Status = "sink_rejected"
	StatusSinkUnavailable  Status = "sink_unavailable"
	StatusArtifactFailed   Status = "artifact_failed"
)

// Result is the record returned by every run. Failures are reported here
// rather than returned as errors.
type Result struct {
	RunID               string        `json:"run_id"`
	Source              string        `json:"source,omitempty"`
	TriplesExtracted    int           `json:"triples_extracted"`
	TriplesAfterDedup   int           `json:"triples_after_dedup"`
	TriplesDropped      int           `json:"triples_dropped"`
	StatementsSubmitted int           `json:"statements_submitted"`
	NodesAffected       int           `json:"nodes_affected"`
	EdgesAffected       int           `json:"edges_affected"`
	Succeeded           bool          `json:"succeeded"`
	Status              Status        `json:"status"`
	Err                 error         `json:"-"`
	ArtifactPath        string        `json:"artifact_path,omitempty"`
	Elapsed             time.Duration `json:"elapsed"`
}

// ErrorMessage returns the failure message, or "" for a clean run.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Observer receives every finished Result. Implementations must not block.
type Observer interface {
	ObserveRun(ctx context.Context, r Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Result)

func (f ObserverFunc) ObserveRun(ctx context.Context, r Result) { f(ctx, r) }
