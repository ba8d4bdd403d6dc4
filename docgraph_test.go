package docgraph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/docgraph/cypher"
	"github.com/brunobiangulo/docgraph/graph"
	"github.com/brunobiangulo/docgraph/parser"
	"github.com/brunobiangulo/docgraph/sink"
)

const report = `
### 2025년 Q3 IT 컨설팅 보고서: A 컴퍼니 전략 ###

서론: A 컴퍼니는 금융 산업 분야의 선두 주자입니다.

프로젝트 AAA은 Python 기술을 사용하며, 주니어 컨설턴트 3명이 수행했습니다.
프로젝트 BBB은 AWS 기술을 사용하며, B 컴퍼니에서 프로젝트 BBB를 수행했습니다.
C 컴퍼니에서 프로젝트 CCC를 수행했으며, 프로젝트 CCC은 Java 기술을 사용했습니다.
`

// recordingSink counts calls and returns a fixed error.
type recordingSink struct {
	mu    sync.Mutex
	calls int
	got   []cypher.Statement
	err   error
}

func (r *recordingSink) ApplyBatch(_ context.Context, stmts []cypher.Statement) (sink.Counts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.got = append(r.got, stmts...)
	if r.err != nil {
		return sink.Counts{}, r.err
	}
	return sink.Counts{NodesCreated: 2 * len(stmts), EdgesCreated: len(stmts)}, nil
}

func (r *recordingSink) Close() error { return nil }

type failingSource struct{ err error }

func (f failingSource) ExtractText(context.Context, string) (string, error) { return "", f.err }

func newPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	return p
}

func TestRunReport(t *testing.T) {
	p := newPipeline(t)
	mem := sink.NewMemory()

	res := p.Run(context.Background(), report, mem)
	require.True(t, res.Succeeded, "err: %v", res.Err)
	assert.Equal(t, StatusOK, res.Status)
	assert.NoError(t, res.Err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 6, res.TriplesExtracted)
	assert.Equal(t, 6, res.TriplesAfterDedup)
	assert.Equal(t, 6, res.StatementsSubmitted)
	assert.Equal(t, 10, res.NodesAffected)
	assert.Equal(t, 6, res.EdgesAffected)

	assert.True(t, mem.HasEdge(cypher.EdgeKey{
		Subject:  cypher.NodeKey{Label: graph.LabelProject, Name: "프로젝트 AAA"},
		Relation: graph.RelUsesTech,
		Object:   cypher.NodeKey{Label: graph.LabelTechnology, Name: "Python"},
	}))
	assert.True(t, mem.HasEdge(cypher.EdgeKey{
		Subject:  cypher.NodeKey{Label: graph.LabelCompany, Name: "B 컴퍼니"},
		Relation: graph.RelConducts,
		Object:   cypher.NodeKey{Label: graph.LabelProject, Name: "프로젝트 BBB"},
	}))
}

func TestRunIdempotent(t *testing.T) {
	p := newPipeline(t)
	mem := sink.NewMemory()

	first := p.Run(context.Background(), report, mem)
	require.True(t, first.Succeeded)
	nodes, edges := mem.NodeCount(), mem.EdgeCount()

	second := p.Run(context.Background(), report, mem)
	require.True(t, second.Succeeded)
	assert.Equal(t, first.StatementsSubmitted, second.StatementsSubmitted)
	assert.Zero(t, second.NodesAffected)
	assert.Zero(t, second.EdgesAffected)
	assert.Equal(t, nodes, mem.NodeCount())
	assert.Equal(t, edges, mem.EdgeCount())
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunEmptyInput(t *testing.T) {
	p := newPipeline(t)

	for _, text := range []string{"", "   \n", "관련 없는 문장입니다."} {
		s := &recordingSink{}
		res := p.Run(context.Background(), text, s)
		assert.False(t, res.Succeeded)
		assert.Equal(t, StatusNoTriples, res.Status)
		assert.ErrorIs(t, res.Err, ErrNoTriples)
		assert.Zero(t, res.TriplesExtracted)
		assert.Zero(t, res.StatementsSubmitted)
		assert.Zero(t, s.calls, "sink must not be contacted for %q", text)
	}
}

func TestRunDuplicateSentence(t *testing.T) {
	p := newPipeline(t)
	s := &recordingSink{}

	sentence := "B 컴퍼니에서 프로젝트 BBB를 수행했습니다."
	res := p.Run(context.Background(), sentence+"\n"+sentence, s)
	require.True(t, res.Succeeded)
	assert.Equal(t, 2, res.TriplesExtracted)
	assert.Equal(t, 1, res.TriplesAfterDedup)
	assert.Equal(t, 1, res.StatementsSubmitted)
	require.Len(t, s.got, 1)
	assert.Equal(t, "B 컴퍼니", s.got[0].Subject.Name)
}

func TestRunApostropheName(t *testing.T) {
	p := newPipeline(t)
	mem := sink.NewMemory()

	res := p.Run(context.Background(), "프로젝트 AAA은 O'Reilly 기술을 사용한다.", mem)
	require.True(t, res.Succeeded)
	assert.Equal(t, 2, mem.NodeCount())
	assert.Contains(t, mem.Nodes(), cypher.NodeKey{Label: graph.LabelTechnology, Name: "O'Reilly"})
}

func TestRunSinkRejected(t *testing.T) {
	p := newPipeline(t)
	rejected := &sink.RejectedError{Index: 0, Message: "constraint violated"}
	s := &recordingSink{err: rejected}

	res := p.Run(context.Background(), report, s)
	assert.False(t, res.Succeeded)
	assert.Equal(t, StatusSinkRejected, res.Status)
	assert.ErrorIs(t, res.Err, ErrSinkRejected)

	var re *sink.RejectedError
	require.ErrorAs(t, res.Err, &re)
	assert.Equal(t, "constraint violated", re.Message)
	assert.Equal(t, 1, s.calls, "no retry")
	assert.Equal(t, 6, res.StatementsSubmitted)
}

func TestRunSinkUnavailable(t *testing.T) {
	p := newPipeline(t)

	tests := []struct {
		name string
		err  error
	}{
		{"unavailable", sink.ErrUnavailable},
		{"deadline", context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &recordingSink{err: tt.err}
			res := p.Run(context.Background(), report, s)
			assert.False(t, res.Succeeded)
			assert.Equal(t, StatusSinkUnavailable, res.Status)
			assert.ErrorIs(t, res.Err, ErrSinkUnavailable)
			assert.ErrorIs(t, res.Err, tt.err)
			assert.Equal(t, 1, s.calls)
		})
	}
}

func TestRunClosedMemorySink(t *testing.T) {
	p := newPipeline(t)
	mem := sink.NewMemory()
	require.NoError(t, mem.Close())

	res := p.Run(context.Background(), report, mem)
	assert.Equal(t, StatusSinkUnavailable, res.Status)
}

func TestRunWritesArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "generated.cypher")
	p := newPipeline(t, WithArtifactPath(path))
	s := &recordingSink{}

	res := p.Run(context.Background(), report, s)
	require.True(t, res.Succeeded)
	assert.Equal(t, path, res.ArtifactPath)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	stmts, err := cypher.ReadScript(f)
	require.NoError(t, err)
	assert.Equal(t, s.got, stmts)
}

func TestRunArtifactFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	p := newPipeline(t, WithArtifactPath(filepath.Join(blocker, "generated.cypher")))
	s := &recordingSink{}

	res := p.Run(context.Background(), report, s)
	assert.False(t, res.Succeeded)
	assert.Equal(t, StatusArtifactFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrArtifact)
	assert.Zero(t, s.calls)
}

func TestRunDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte(report), 0o644))

	p := newPipeline(t)
	mem := sink.NewMemory()

	res := p.RunDocument(context.Background(), parser.NewRegistry(), path, mem)
	require.True(t, res.Succeeded, "err: %v", res.Err)
	assert.Equal(t, path, res.Source)
	assert.Equal(t, 10, mem.NodeCount())
}

func TestRunDocumentSourceError(t *testing.T) {
	p := newPipeline(t)
	s := &recordingSink{}
	cause := errors.New("disk on fire")

	res := p.RunDocument(context.Background(), failingSource{err: cause}, "report.pdf", s)
	assert.False(t, res.Succeeded)
	assert.Equal(t, StatusSourceReadFailed, res.Status)
	assert.ErrorIs(t, res.Err, ErrSourceRead)
	assert.ErrorIs(t, res.Err, cause)
	assert.Zero(t, res.TriplesExtracted)
	assert.Zero(t, s.calls)

	res = p.RunDocument(context.Background(), parser.NewRegistry(), "report.pptx", s)
	assert.Equal(t, StatusSourceReadFailed, res.Status)
	assert.ErrorIs(t, res.Err, parser.ErrUnsupportedFormat)
}

func TestCompileDryRun(t *testing.T) {
	p := newPipeline(t)

	stmts, res := p.Compile(report)
	assert.True(t, res.Succeeded)
	assert.Len(t, stmts, 6)
	assert.Zero(t, res.StatementsSubmitted)

	again, _ := p.Compile(report)
	assert.Equal(t, stmts, again)

	stmts, res = p.Compile("")
	assert.Empty(t, stmts)
	assert.Equal(t, StatusNoTriples, res.Status)
}

func TestObserver(t *testing.T) {
	var seen []Result
	obs := ObserverFunc(func(_ context.Context, r Result) { seen = append(seen, r) })
	p := newPipeline(t, WithObserver(obs))

	p.Run(context.Background(), report, sink.NewMemory())
	p.Run(context.Background(), "", sink.NewMemory())
	p.RunDocument(context.Background(), failingSource{err: errors.New("x")}, "a.txt", sink.NewMemory())

	require.Len(t, seen, 3)
	assert.Equal(t, StatusOK, seen[0].Status)
	assert.Equal(t, StatusNoTriples, seen[1].Status)
	assert.Equal(t, StatusSourceReadFailed, seen[2].Status)
}

func TestNewWithRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	rules := `rules:
  - name: company-tech
    pattern: '([\p{L}_]+ 컴퍼니)[은는] ([A-Za-z]+)[을를] 도입'
    subject: {group: 1, label: Company}
    relation: USES_TECH
    object: {group: 2, label: Technology}
`
	require.NoError(t, os.WriteFile(path, []byte(rules), 0o644))

	cfg := DefaultConfig()
	cfg.RulesPath = path
	p, err := New(cfg)
	require.NoError(t, err)

	stmts, res := p.Compile("D 컴퍼니는 Rust를 도입했다.")
	require.True(t, res.Succeeded)
	require.Len(t, stmts, 1)
	assert.Equal(t, "Rust", stmts[0].Object.Name)

	cfg.RulesPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
