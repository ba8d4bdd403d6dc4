// Package sink defines the graph store boundary the pipeline submits
// compiled statements to, plus the Neo4j and in-memory implementations.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/brunobiangulo/docgraph/cypher"
)

// Counts reports what a batch changed. Statements that matched existing
// nodes or edges contribute nothing.
type Counts struct {
	NodesCreated int `json:"nodes_created"`
	EdgesCreated int `json:"edges_created"`
}

// Add returns the sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		NodesCreated: c.NodesCreated + o.NodesCreated,
		EdgesCreated: c.EdgesCreated + o.EdgesCreated,
	}
}

// Sink executes idempotent upsert batches against a graph store.
type Sink interface {
	// ApplyBatch applies every statement. Statements are independent and
	// idempotent, so the batch may be replayed after a failure.
	ApplyBatch(ctx context.Context, stmts []cypher.Statement) (Counts, error)

	// Close releases the underlying connection.
	Close() error
}

// ErrUnavailable is returned when the store cannot be reached or the batch
// timed out.
var ErrUnavailable = errors.New("sink: graph store unavailable")

// CommitIndex is the RejectedError index of a batch whose statements all ran
// but whose commit was refused.
const CommitIndex = -1

// RejectedError reports a statement the store refused.
type RejectedError struct {
	Index     int              // position of the statement in the batch, or CommitIndex
	Statement cypher.Statement // the refused statement, zero for commit failures
	Message   string           // store-side message
	Err       error
}

func (e *RejectedError) Error() string {
	if e.Index == CommitIndex {
		return "sink: batch commit rejected: " + e.Message
	}
	return fmt.Sprintf("sink: statement %d (%s:%s)-[%s]->(%s:%s) rejected: %s",
		e.Index, e.Statement.Subject.Label, e.Statement.Subject.Name, e.Statement.Relation,
		e.Statement.Object.Label, e.Statement.Object.Name, e.Message)
}

func (e *RejectedError) Unwrap() error { return e.Err }
