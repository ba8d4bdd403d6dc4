//go:build cgo

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/docgraph/cypher"
	"github.com/brunobiangulo/docgraph/sink"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func stmt(subjLabel, subj, rel, objLabel, obj string) cypher.Statement {
	return cypher.Statement{
		Subject:  cypher.NodeKey{Label: subjLabel, Name: subj},
		Relation: rel,
		Object:   cypher.NodeKey{Label: objLabel, Name: obj},
	}
}

func sampleBatch() []cypher.Statement {
	return []cypher.Statement{
		stmt("Project", "프로젝트 AAA", "USES_TECH", "Technology", "Python"),
		stmt("Company", "B 컴퍼니", "CONDUCTS", "Project", "프로젝트 BBB"),
		stmt("Project", "프로젝트 BBB", "USES_TECH", "Technology", "AWS"),
		stmt("Company", "A 컴퍼니", "BELONGS_TO", "Industry", "금융"),
	}
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if v != len(migrations) {
		t.Errorf("schema version = %d, want %d", v, len(migrations))
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestReopenKeepsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	v, _ := s.SchemaVersion(context.Background())
	if v != len(migrations) {
		t.Errorf("schema version = %d after reopen, want %d", v, len(migrations))
	}
}

// ---------------------------------------------------------------------------
// ApplyBatch
// ---------------------------------------------------------------------------

func TestApplyBatchIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.ApplyBatch(ctx, sampleBatch())
	if err != nil {
		t.Fatalf("first ApplyBatch: %v", err)
	}
	if first.NodesCreated != 7 || first.EdgesCreated != 4 {
		t.Errorf("first batch counts = %+v, want 7 nodes 4 edges", first)
	}

	for i := 0; i < 3; i++ {
		again, err := s.ApplyBatch(ctx, sampleBatch())
		if err != nil {
			t.Fatalf("repeat ApplyBatch: %v", err)
		}
		if again != (sink.Counts{}) {
			t.Errorf("repeat batch %d created %+v, want nothing", i, again)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Nodes != 7 || stats.Edges != 4 {
		t.Errorf("stats = %+v, want 7 nodes 4 edges", stats)
	}
}

func TestApplyBatchSharedNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "프로젝트 BBB" appears as object then subject: one node.
	c, err := s.ApplyBatch(ctx, sampleBatch()[1:3])
	if err != nil {
		t.Fatal(err)
	}
	if c.NodesCreated != 3 || c.EdgesCreated != 2 {
		t.Errorf("counts = %+v, want 3 nodes 2 edges", c)
	}

	// Same names under another label are distinct nodes.
	c, err = s.ApplyBatch(ctx, []cypher.Statement{stmt("Technology", "프로젝트 BBB", "USES_TECH", "Technology", "AWS")})
	if err != nil {
		t.Fatal(err)
	}
	if c.NodesCreated != 1 || c.EdgesCreated != 1 {
		t.Errorf("counts = %+v, want 1 node 1 edge", c)
	}
}

func TestApplyBatchHostileNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hostile := []string{
		`O'Reilly 컴퍼니`,
		`x'); DROP TABLE nodes; --`,
		`"quoted" \ backslash`,
		"line\nbreak",
	}
	var batch []cypher.Statement
	for _, name := range hostile {
		batch = append(batch, stmt("Company", name, "CONDUCTS", "Project", "프로젝트 Q"))
	}

	c, err := s.ApplyBatch(ctx, batch)
	if err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if c.NodesCreated != len(hostile)+1 {
		t.Errorf("nodes created = %d, want %d", c.NodesCreated, len(hostile)+1)
	}

	for _, name := range hostile {
		n, err := s.GetNode(ctx, "Company", name)
		if err != nil {
			t.Fatalf("GetNode(%q): %v", name, err)
		}
		if n.Name != name {
			t.Errorf("stored name = %q, want %q", n.Name, name)
		}
	}

	edges, err := s.AllEdges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != len(hostile) {
		t.Errorf("edges = %d, want %d", len(edges), len(hostile))
	}
	if edges[0].Source.Name != hostile[0] || edges[0].Target.Name != "프로젝트 Q" {
		t.Errorf("first edge = %+v", edges[0])
	}
}

func TestApplyBatchRejectsAndRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []cypher.Statement{
		stmt("Project", "프로젝트 AAA", "USES_TECH", "Technology", "Python"),
		stmt("Project", "", "USES_TECH", "Technology", "Go"),
	}
	_, err := s.ApplyBatch(ctx, batch)

	var rej *sink.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *sink.RejectedError, got %v", err)
	}
	if rej.Index != 1 || rej.Statement != batch[1] {
		t.Errorf("rejected index=%d statement=%+v", rej.Index, rej.Statement)
	}

	stats, _ := s.Stats(ctx)
	if stats.Nodes != 0 || stats.Edges != 0 {
		t.Errorf("batch was not rolled back: %+v", stats)
	}
}

func TestApplyBatchClosed(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	_, err = s.ApplyBatch(context.Background(), sampleBatch())
	if !errors.Is(err, sink.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestGetNodeMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetNode(context.Background(), "Project", "nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestAllNodesOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.ApplyBatch(ctx, sampleBatch()); err != nil {
		t.Fatal(err)
	}
	nodes, err := s.AllNodes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 7 {
		t.Fatalf("nodes = %d, want 7", len(nodes))
	}
	if nodes[0].Label != "Company" || nodes[0].Name != "A 컴퍼니" {
		t.Errorf("first node = %+v, want Company/A 컴퍼니", nodes[0])
	}
}

// ---------------------------------------------------------------------------
// Run log
// ---------------------------------------------------------------------------

func TestLogRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runs := []Run{
		{ID: "run-1", Source: "a.pdf", Status: "ok", Succeeded: true, TriplesExtracted: 6, TriplesAfterDedup: 6,
			StatementsSubmitted: 6, NodesCreated: 9, EdgesCreated: 6, ElapsedMs: 12, ArtifactPath: "out.cypher"},
		{ID: "run-2", Source: "b.pdf", Status: "no_triples"},
	}
	for _, r := range runs {
		if err := s.LogRun(ctx, r); err != nil {
			t.Fatalf("LogRun(%s): %v", r.ID, err)
		}
	}

	got, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("runs = %d, want 2", len(got))
	}
	byID := map[string]Run{}
	for _, r := range got {
		byID[r.ID] = r
	}
	r1 := byID["run-1"]
	if !r1.Succeeded || r1.NodesCreated != 9 || r1.ArtifactPath != "out.cypher" || r1.ElapsedMs != 12 {
		t.Errorf("run-1 = %+v", r1)
	}
	if byID["run-2"].Succeeded {
		t.Error("run-2 should not be marked succeeded")
	}

	if err := s.LogRun(ctx, runs[0]); err == nil {
		t.Error("expected duplicate run id to fail")
	}
}

func TestBatchErrorCommit(t *testing.T) {
	err := batchError(errors.New("constraint failed"), sink.CommitIndex, cypher.Statement{})
	var rej *sink.RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *sink.RejectedError, got %v", err)
	}
	if rej.Index != sink.CommitIndex || rej.Statement != (cypher.Statement{}) {
		t.Errorf("commit failure blamed on statement %d: %+v", rej.Index, rej.Statement)
	}

	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	if err := batchError(busy, sink.CommitIndex, cypher.Statement{}); !errors.Is(err, sink.ErrUnavailable) {
		t.Errorf("busy commit = %v, want sink.ErrUnavailable", err)
	}
}
