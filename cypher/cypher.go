// Package cypher compiles triples into idempotent Cypher MERGE statements.
//
// Node and relation names never appear in query text: Query pairs a fixed
// query skeleton with Params. Literal renders the same statement with names
// inlined as escaped string literals for human-readable artifacts.
package cypher

import (
	"strings"

	"github.com/brunobiangulo/docgraph/graph"
)

// Parameter names used by Query.
const (
	ParamSubject = "subject"
	ParamObject  = "object"
)

// NodeKey identifies a node by label and name. Sinks upsert on this key.
type NodeKey struct {
	Label string `json:"label"`
	Name  string `json:"name"`
}

// Statement ensures a subject node, an object node, and a directed edge of
// Relation between them. Applying it any number of times yields the same
// graph as applying it once.
type Statement struct {
	Subject  NodeKey `json:"subject"`
	Relation string  `json:"relation"`
	Object   NodeKey `json:"object"`
}

// EdgeKey identifies the edge a statement ensures.
type EdgeKey struct {
	Subject  NodeKey
	Relation string
	Object   NodeKey
}

// Edge returns the edge key of the statement.
func (s Statement) Edge() EdgeKey {
	return EdgeKey{Subject: s.Subject, Relation: s.Relation, Object: s.Object}
}

// Compile converts triples into statements, one per triple, same order.
func Compile(triples []graph.Triple) []Statement {
	stmts := make([]Statement, len(triples))
	for i, t := range triples {
		stmts[i] = Statement{
			Subject:  NodeKey{Label: t.SubjectType, Name: t.SubjectName},
			Relation: t.Relation,
			Object:   NodeKey{Label: t.ObjectType, Name: t.ObjectName},
		}
	}
	return stmts
}

// Query returns the parameterized statement text.
func (s Statement) Query() string {
	return s.render("$"+ParamSubject, "$"+ParamObject, " ")
}

// Params returns the parameters referenced by Query.
func (s Statement) Params() map[string]any {
	return map[string]any{
		ParamSubject: s.Subject.Name,
		ParamObject:  s.Object.Name,
	}
}

// Literal returns the statement with names inlined as quoted literals.
func (s Statement) Literal() string {
	return s.render(Quote(s.Subject.Name), Quote(s.Object.Name), "\n")
}

func (s Statement) render(subject, object, sep string) string {
	var b strings.Builder
	b.WriteString("MERGE (s:")
	b.WriteString(QuoteIdentifier(s.Subject.Label))
	b.WriteString(" {name: ")
	b.WriteString(subject)
	b.WriteString("})")
	b.WriteString(sep)
	b.WriteString("MERGE (o:")
	b.WriteString(QuoteIdentifier(s.Object.Label))
	b.WriteString(" {name: ")
	b.WriteString(object)
	b.WriteString("})")
	b.WriteString(sep)
	b.WriteString("MERGE (s)-[:")
	b.WriteString(QuoteIdentifier(s.Relation))
	b.WriteString("]->(o)")
	return b.String()
}

// QuoteIdentifier backtick-quotes a label or relation type, doubling any
// embedded backtick.
func QuoteIdentifier(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
