package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/docgraph/cypher"
	"github.com/brunobiangulo/docgraph/sink"
)

// Node represents a row in the nodes table.
type Node struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Name  string `json:"name"`
}

// Edge represents a row in the edges table, joined with its endpoints.
type Edge struct {
	ID       int64  `json:"id"`
	Source   Node   `json:"source"`
	Relation string `json:"relation"`
	Target   Node   `json:"target"`
}

// Run represents a row in the runs table.
type Run struct {
	ID                  string `json:"id"`
	Source              string `json:"source"`
	Status              string `json:"status"`
	Succeeded           bool   `json:"succeeded"`
	TriplesExtracted    int    `json:"triples_extracted"`
	TriplesAfterDedup   int    `json:"triples_after_dedup"`
	StatementsSubmitted int    `json:"statements_submitted"`
	NodesCreated        int    `json:"nodes_created"`
	EdgesCreated        int    `json:"edges_created"`
	Error               string `json:"error,omitempty"`
	ElapsedMs           int64  `json:"elapsed_ms"`
	ArtifactPath        string `json:"artifact_path,omitempty"`
	CreatedAt           string `json:"created_at,omitempty"`
}

// Stats holds row counts for the graph tables.
type Stats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
	Runs  int `json:"runs"`
}

// Store is an embedded SQLite property graph. It implements sink.Sink.
type Store struct {
	db *sql.DB
}

var _ sink.Sink = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and
// initialises the graph schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Graph operations ---

// ApplyBatch upserts every statement in a single transaction. A refused
// statement rolls back the whole batch and is reported as a
// *sink.RejectedError, a refused commit as one with Index sink.CommitIndex.
// Lock contention and closed databases surface as sink.ErrUnavailable.
func (s *Store) ApplyBatch(ctx context.Context, stmts []cypher.Statement) (sink.Counts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sink.Counts{}, fmt.Errorf("%w: %v", sink.ErrUnavailable, err)
	}

	var total sink.Counts
	for i, st := range stmts {
		c, err := applyStatement(ctx, tx, st)
		if err != nil {
			tx.Rollback()
			return sink.Counts{}, batchError(err, i, st)
		}
		total = total.Add(c)
	}
	if err := tx.Commit(); err != nil {
		return sink.Counts{}, batchError(err, sink.CommitIndex, cypher.Statement{})
	}
	return total, nil
}

// batchError classifies a failure of the statement at idx, or of the commit.
func batchError(err error, idx int, st cypher.Statement) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: %v", sink.ErrUnavailable, err)
	}
	return &sink.RejectedError{Index: idx, Statement: st, Message: err.Error(), Err: err}
}

func applyStatement(ctx context.Context, tx *sql.Tx, st cypher.Statement) (sink.Counts, error) {
	var c sink.Counts

	srcID, created, err := upsertNode(ctx, tx, st.Subject)
	if err != nil {
		return c, err
	}
	if created {
		c.NodesCreated++
	}

	dstID, created, err := upsertNode(ctx, tx, st.Object)
	if err != nil {
		return c, err
	}
	if created {
		c.NodesCreated++
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO edges (source_id, relation, target_id) VALUES (?, ?, ?)
		ON CONFLICT(source_id, relation, target_id) DO NOTHING
	`, srcID, st.Relation, dstID)
	if err != nil {
		return c, fmt.Errorf("upserting edge: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		c.EdgesCreated++
	}
	return c, nil
}

// upsertNode ensures the node exists and returns its ID and whether this
// call created it.
func upsertNode(ctx context.Context, tx *sql.Tx, k cypher.NodeKey) (int64, bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (label, name) VALUES (?, ?)
		ON CONFLICT(label, name) DO NOTHING
	`, k.Label, k.Name)
	if err != nil {
		return 0, false, fmt.Errorf("upserting node %s: %w", k.Label, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	var id int64
	row := tx.QueryRowContext(ctx, "SELECT id FROM nodes WHERE label = ? AND name = ?", k.Label, k.Name)
	if err := row.Scan(&id); err != nil {
		return 0, false, fmt.Errorf("reading node id: %w", err)
	}
	return id, n > 0, nil
}

// GetNode returns the node with the given key, or sql.ErrNoRows.
func (s *Store) GetNode(ctx context.Context, label, name string) (*Node, error) {
	n := &Node{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, label, name FROM nodes WHERE label = ? AND name = ?", label, name,
	).Scan(&n.ID, &n.Label, &n.Name)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// AllNodes returns every node ordered by label and name.
func (s *Store) AllNodes(ctx context.Context) ([]Node, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, label, name FROM nodes ORDER BY label, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Label, &n.Name); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// AllEdges returns every edge with its endpoints, in insertion order.
func (s *Store) AllEdges(ctx context.Context) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, s.id, s.label, s.name, e.relation, t.id, t.label, t.name
		FROM edges e
		JOIN nodes s ON s.id = e.source_id
		JOIN nodes t ON t.id = e.target_id
		ORDER BY e.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.Source.ID, &e.Source.Label, &e.Source.Name,
			&e.Relation, &e.Target.ID, &e.Target.Label, &e.Target.Name); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// Stats returns row counts for nodes, edges and runs.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM nodes", &stats.Nodes},
		{"SELECT COUNT(*) FROM edges", &stats.Edges},
		{"SELECT COUNT(*) FROM runs", &stats.Runs},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- Run log ---

// LogRun records a pipeline run.
func (s *Store) LogRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, source, status, succeeded, triples_extracted, triples_after_dedup,
			statements_submitted, nodes_created, edges_created, error, elapsed_ms, artifact_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Source, r.Status, r.Succeeded, r.TriplesExtracted, r.TriplesAfterDedup,
		r.StatementsSubmitted, r.NodesCreated, r.EdgesCreated, r.Error, r.ElapsedMs, r.ArtifactPath)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(source, ''), status, succeeded, triples_extracted, triples_after_dedup,
			statements_submitted, nodes_created, edges_created, COALESCE(error, ''),
			COALESCE(elapsed_ms, 0), COALESCE(artifact_path, ''), created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.Succeeded, &r.TriplesExtracted,
			&r.TriplesAfterDedup, &r.StatementsSubmitted, &r.NodesCreated, &r.EdgesCreated,
			&r.Error, &r.ElapsedMs, &r.ArtifactPath, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func isUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked ||
			se.Code == sqlite3.ErrCantOpen || se.Code == sqlite3.ErrIoErr
	}
	return false
}
