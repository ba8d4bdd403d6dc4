package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/brunobiangulo/docgraph/cypher"
)

// Neo4jConfig configures the Neo4j sink.
type Neo4jConfig struct {
	URI      string        `json:"uri" yaml:"uri"`
	User     string        `json:"user" yaml:"user"`
	Password string        `json:"password" yaml:"password"`
	Database string        `json:"database" yaml:"database"` // empty uses the server default
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`   // per batch, 0 means no limit
}

// Neo4j applies batches to a Neo4j server through the Bolt driver. A batch
// runs in one explicit write transaction, each statement with its own
// parameters. Batches are attempted once.
type Neo4j struct {
	driver neo4j.DriverWithContext
	cfg    Neo4jConfig
}

// OpenNeo4j creates a driver and verifies connectivity. The caller owns the
// returned sink and must Close it.
func OpenNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Info("neo4j: connected", "uri", cfg.URI, "database", cfg.Database)
	return &Neo4j{driver: driver, cfg: cfg}, nil
}

func (n *Neo4j) session(ctx context.Context) neo4j.SessionWithContext {
	return n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: n.cfg.Database,
	})
}

// EnsureConstraints creates a uniqueness constraint on name for every label,
// so concurrent MERGEs on the same key cannot create duplicate nodes.
func (n *Neo4j) EnsureConstraints(ctx context.Context, labels []string) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	for _, label := range labels {
		q := fmt.Sprintf("CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.name IS UNIQUE",
			cypher.QuoteIdentifier(label))
		res, err := session.Run(ctx, q, nil)
		if err == nil {
			_, err = res.Consume(ctx)
		}
		if err != nil {
			if isUnavailable(err) {
				return fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return fmt.Errorf("creating constraint for %s: %w", label, err)
		}
	}
	return nil
}

// ApplyBatch runs every statement in one write transaction and sums the
// server-reported node and relationship creation counters. Nothing is
// retried: the first failure rolls the batch back and is returned.
func (n *Neo4j) ApplyBatch(ctx context.Context, stmts []cypher.Statement) (Counts, error) {
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return Counts{}, classify(err, CommitIndex, stmts)
	}

	var c Counts
	for i, s := range stmts {
		res, err := tx.Run(ctx, s.Query(), s.Params())
		if err == nil {
			var summary neo4j.ResultSummary
			if summary, err = res.Consume(ctx); err == nil {
				counters := summary.Counters()
				c.NodesCreated += counters.NodesCreated()
				c.EdgesCreated += counters.RelationshipsCreated()
				continue
			}
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Warn("neo4j: rollback failed", "error", rbErr)
		}
		return Counts{}, classify(err, i, stmts)
	}
	if err := tx.Commit(ctx); err != nil {
		return Counts{}, classify(err, CommitIndex, stmts)
	}
	return c, nil
}

// Close closes the driver and its connection pool.
func (n *Neo4j) Close() error {
	return n.driver.Close(context.Background())
}

// classify maps a driver error to ErrUnavailable or a RejectedError for the
// statement at idx, or for the commit when idx is CommitIndex.
func classify(err error, idx int, stmts []cypher.Statement) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	rej := &RejectedError{Index: idx, Message: err.Error(), Err: err}
	if idx >= 0 && idx < len(stmts) {
		rej.Statement = stmts[idx]
	}
	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		rej.Message = neoErr.Code + ": " + neoErr.Msg
	}
	return rej
}

func isUnavailable(err error) bool {
	var netErr net.Error
	return neo4j.IsConnectivityError(err) ||
		errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
