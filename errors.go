package docgraph

import "errors"

var (
	// ErrSourceRead is returned when document text could not be acquired.
	// No extraction is attempted for the run.
	ErrSourceRead = errors.New("docgraph: reading source document failed")

	// ErrNoTriples marks a run whose text produced no usable triples. It is
	// reported in the result but is not a failure of any component.
	ErrNoTriples = errors.New("docgraph: no triples extracted")

	// ErrSinkRejected is returned when the graph store refused a statement.
	// Statements applied before the refusal are not rolled back by the
	// pipeline.
	ErrSinkRejected = errors.New("docgraph: graph store rejected statement")

	// ErrSinkUnavailable is returned when the graph store could not be
	// reached or timed out.
	ErrSinkUnavailable = errors.New("docgraph: graph store unavailable")

	// ErrArtifact is returned when the statement artifact could not be written.
	ErrArtifact = errors.New("docgraph: writing statement artifact failed")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("docgraph: invalid configuration")
)
