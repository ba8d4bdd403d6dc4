package graph

import (
	"regexp"
	"strings"
)

// Node label constants used by the built-in rule table.
const (
	LabelProject    = "Project"
	LabelCompany    = "Company"
	LabelTechnology = "Technology"
	LabelIndustry   = "Industry"
)

// Relation type constants used by the built-in rule table.
const (
	RelUsesTech  = "USES_TECH"
	RelConducts  = "CONDUCTS"
	RelBelongsTo = "BELONGS_TO"
)

// Triple is one directed, typed relation between two named, typed entities.
// Triples are compared by value; two triples are duplicates only when all
// five fields match exactly.
type Triple struct {
	SubjectType string `json:"subject_type" yaml:"subject_type"`
	SubjectName string `json:"subject_name" yaml:"subject_name"`
	Relation    string `json:"relation" yaml:"relation"`
	ObjectType  string `json:"object_type" yaml:"object_type"`
	ObjectName  string `json:"object_name" yaml:"object_name"`
}

// String renders the triple as (Type:Name)-[REL]->(Type:Name).
func (t Triple) String() string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(t.SubjectType)
	b.WriteString(":")
	b.WriteString(t.SubjectName)
	b.WriteString(")-[")
	b.WriteString(t.Relation)
	b.WriteString("]->(")
	b.WriteString(t.ObjectType)
	b.WriteString(":")
	b.WriteString(t.ObjectName)
	b.WriteString(")")
	return b.String()
}

var identRe = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_]*$`)

// ValidIdentifier reports whether s can be used as a node label or
// relation type.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}
