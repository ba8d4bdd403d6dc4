// Package docgraph turns Korean business-report text into knowledge-graph
// upserts. A Pipeline extracts typed triples with a fixed rule table,
// deduplicates them, compiles them into parameterized MERGE statements and
// submits the batch to a sink.Sink.
package docgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/docgraph/cypher"
	"github.com/brunobiangulo/docgraph/graph"
	"github.com/brunobiangulo/docgraph/sink"
)

// TextSource supplies the plain text of a document. parser.Registry
// implements it.
type TextSource interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Pipeline runs extract, normalize, compile and submit. It holds no state
// between runs and is safe for concurrent use.
type Pipeline struct {
	extractor    *graph.Extractor
	artifactPath string
	observers    []Observer
	now          func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithExtractor replaces the rule table loaded from the config.
func WithExtractor(e *graph.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithArtifactPath overrides Config.ArtifactPath.
func WithArtifactPath(path string) Option {
	return func(p *Pipeline) { p.artifactPath = path }
}

// WithObserver registers an observer for every finished run.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

// New builds a Pipeline. The rule table comes from cfg.RulesPath, or the
// built-in rules when it is empty.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		artifactPath: cfg.ArtifactPath,
		now:          time.Now,
	}
	for _, o := range opts {
		o(p)
	}

	if p.extractor == nil {
		rules := graph.DefaultRules()
		if cfg.RulesPath != "" {
			loaded, err := graph.LoadRules(cfg.RulesPath)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			rules = loaded
		}
		ex, err := graph.NewExtractor(rules)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		p.extractor = ex
	}

	slog.Debug("docgraph: pipeline ready",
		"rules", len(p.extractor.Rules()), "artifact", p.artifactPath)
	return p, nil
}

// Extractor returns the active extractor.
func (p *Pipeline) Extractor() *graph.Extractor { return p.extractor }

// Run processes text and submits the compiled batch to s.
func (p *Pipeline) Run(ctx context.Context, text string, s sink.Sink) Result {
	return p.run(ctx, "", text, s)
}

// RunDocument reads path through src and runs the pipeline on its text.
// A read failure ends the run before extraction; s is not contacted.
func (p *Pipeline) RunDocument(ctx context.Context, src TextSource, path string, s sink.Sink) Result {
	start := p.now()
	text, err := src.ExtractText(ctx, path)
	if err != nil {
		res := Result{
			RunID:  uuid.NewString(),
			Source: path,
			Status: StatusSourceReadFailed,
			Err:    fmt.Errorf("%w: %s: %w", ErrSourceRead, path, err),
		}
		return p.finish(ctx, res, start)
	}
	return p.run(ctx, path, text, s)
}

// Compile performs a dry run: it returns the statements a Run would submit
// without touching any sink or artifact.
func (p *Pipeline) Compile(text string) ([]cypher.Statement, Result) {
	start := p.now()
	res := Result{RunID: uuid.NewString()}
	stmts := p.compile(text, &res)
	if len(stmts) == 0 {
		res.Status = StatusNoTriples
		res.Err = ErrNoTriples
	} else {
		res.Status = StatusOK
		res.Succeeded = true
	}
	res.Elapsed = p.now().Sub(start)
	return stmts, res
}

func (p *Pipeline) compile(text string, res *Result) []cypher.Statement {
	triples := p.extractor.Extract(text)
	res.TriplesExtracted = len(triples)

	unique, stats := graph.Normalize(triples)
	res.TriplesAfterDedup = len(unique)
	res.TriplesDropped = stats.Dropped

	return cypher.Compile(unique)
}

func (p *Pipeline) run(ctx context.Context, source, text string, s sink.Sink) Result {
	start := p.now()
	res := Result{RunID: uuid.NewString(), Source: source}

	stmts := p.compile(text, &res)
	if len(stmts) == 0 {
		res.Status = StatusNoTriples
		res.Err = ErrNoTriples
		return p.finish(ctx, res, start)
	}

	if p.artifactPath != "" {
		if err := writeArtifact(p.artifactPath, stmts); err != nil {
			res.Status = StatusArtifactFailed
			res.Err = fmt.Errorf("%w: %w", ErrArtifact, err)
			return p.finish(ctx, res, start)
		}
		res.ArtifactPath = p.artifactPath
	}

	res.StatementsSubmitted = len(stmts)
	counts, err := s.ApplyBatch(ctx, stmts)
	res.NodesAffected = counts.NodesCreated
	res.EdgesAffected = counts.EdgesCreated
	if err != nil {
		res.Status, res.Err = classifySinkError(err)
		return p.finish(ctx, res, start)
	}

	res.Status = StatusOK
	res.Succeeded = true
	return p.finish(ctx, res, start)
}

func (p *Pipeline) finish(ctx context.Context, res Result, start time.Time) Result {
	res.Elapsed = p.now().Sub(start)

	attrs := []any{
		"run_id", res.RunID,
		"status", res.Status,
		"triples", res.TriplesExtracted,
		"unique", res.TriplesAfterDedup,
		"statements", res.StatementsSubmitted,
		"nodes", res.NodesAffected,
		"edges", res.EdgesAffected,
		"elapsed", res.Elapsed,
	}
	if res.Source != "" {
		attrs = append(attrs, "source", res.Source)
	}
	switch {
	case res.Succeeded:
		slog.Info("docgraph: run complete", attrs...)
	case res.Status == StatusNoTriples:
		slog.Warn("docgraph: no triples extracted", attrs...)
	default:
		slog.Error("docgraph: run failed", append(attrs, "error", res.Err)...)
	}

	for _, o := range p.observers {
		o.ObserveRun(ctx, res)
	}
	return res
}

// classifySinkError maps a sink failure onto the run taxonomy. Anything the
// sink did not mark as a connectivity problem counts as a rejection.
func classifySinkError(err error) (Status, error) {
	if errors.Is(err, sink.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return StatusSinkUnavailable, fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}
	return StatusSinkRejected, fmt.Errorf("%w: %w", ErrSinkRejected, err)
}

// writeArtifact writes the statement script next to path and renames it
// into place so readers never see a partial file.
func writeArtifact(path string, stmts []cypher.Statement) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating artifact dir: %w", err)
	}
	f, err := os.CreateTemp(dir, ".docgraph-*.cypher")
	if err != nil {
		return fmt.Errorf("creating artifact: %w", err)
	}
	tmp := f.Name()
	if err := cypher.WriteScript(f, stmts); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming artifact: %w", err)
	}
	return nil
}
