package graph

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRule is returned when a rule table cannot be compiled.
var ErrInvalidRule = errors.New("graph: invalid extraction rule")

// Capture maps one regex capture group to a typed node.
type Capture struct {
	Group int    `json:"group" yaml:"group"`
	Label string `json:"label" yaml:"label"`
}

// Rule is one row of the extraction table: a pattern plus the fixed shape of
// the triple every match produces.
type Rule struct {
	Name     string  `json:"name" yaml:"name"`
	Pattern  string  `json:"pattern" yaml:"pattern"`
	Subject  Capture `json:"subject" yaml:"subject"`
	Relation string  `json:"relation" yaml:"relation"`
	Object   Capture `json:"object" yaml:"object"`
}

// ruleFile is the on-disk layout of a rule table.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in rule table for IT consulting reports.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "project-technology",
			Pattern:  `(프로젝트 [A-Z]{1,3})[은는] ([^\n]+?) 기술[을를]`,
			Subject:  Capture{Group: 1, Label: LabelProject},
			Relation: RelUsesTech,
			Object:   Capture{Group: 2, Label: LabelTechnology},
		},
		{
			Name:     "company-project",
			Pattern:  `([\p{L}\p{N}_]+ 컴퍼니)에서 (프로젝트 [A-Z]{1,3})[을를] 수행`,
			Subject:  Capture{Group: 1, Label: LabelCompany},
			Relation: RelConducts,
			Object:   Capture{Group: 2, Label: LabelProject},
		},
		{
			Name:     "company-industry",
			Pattern:  `([\p{L}\p{N}_]+ 컴퍼니)[은는] ([^\n]+?) 산업 분야의`,
			Subject:  Capture{Group: 1, Label: LabelCompany},
			Relation: RelBelongsTo,
			Object:   Capture{Group: 2, Label: LabelIndustry},
		},
	}
}

// LoadRules reads a YAML rule table from path.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table of the form
//
//	rules:
//	  - name: company-project
//	    pattern: '(\S+ 컴퍼니)에서 (프로젝트 [A-Z]+)를 수행'
//	    subject: {group: 1, label: Company}
//	    relation: CONDUCTS
//	    object: {group: 2, label: Project}
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decoding yaml: %v", ErrInvalidRule, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("%w: rule table is empty", ErrInvalidRule)
	}
	return f.Rules, nil
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Extractor applies an ordered rule table to text. It holds no state beyond
// the compiled table and is safe for concurrent use.
type Extractor struct {
	rules []compiledRule
}

// NewExtractor compiles the rule table. All rule definition errors surface
// here so that Extract itself cannot fail.
func NewExtractor(rules []Rule) (*Extractor, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidRule)
	}

	seen := make(map[string]bool, len(rules))
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return nil, fmt.Errorf("%w: rule %d has no name", ErrInvalidRule, i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("%w: duplicate rule name %q", ErrInvalidRule, r.Name)
		}
		seen[r.Name] = true

		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: %v", ErrInvalidRule, r.Name, err)
		}
		n := re.NumSubexp()
		for _, c := range []Capture{r.Subject, r.Object} {
			if c.Group < 1 || c.Group > n {
				return nil, fmt.Errorf("%w: rule %q: capture group %d out of range (pattern has %d)",
					ErrInvalidRule, r.Name, c.Group, n)
			}
			if !ValidIdentifier(c.Label) {
				return nil, fmt.Errorf("%w: rule %q: invalid label %q", ErrInvalidRule, r.Name, c.Label)
			}
		}
		if !ValidIdentifier(r.Relation) {
			return nil, fmt.Errorf("%w: rule %q: invalid relation %q", ErrInvalidRule, r.Name, r.Relation)
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	return &Extractor{rules: compiled}, nil
}

// Rules returns a copy of the rule table in evaluation order.
func (e *Extractor) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Rule
	}
	return out
}

// Labels returns every distinct node label the table can produce, in first
// appearance order.
func (e *Extractor) Labels() []string {
	seen := make(map[string]bool)
	var labels []string
	for _, r := range e.rules {
		for _, l := range []string{r.Subject.Label, r.Object.Label} {
			if !seen[l] {
				seen[l] = true
				labels = append(labels, l)
			}
		}
	}
	return labels
}

// Extract runs every rule over text and returns one triple per match, in
// rule order then match order. Rules are independent, so the same span may
// feed several rules, and repeated sentences yield repeated triples.
func (e *Extractor) Extract(text string) []Triple {
	triples := make([]Triple, 0)
	if text == "" {
		return triples
	}

	for _, r := range e.rules {
		for _, m := range r.re.FindAllStringSubmatch(text, -1) {
			triples = append(triples, Triple{
				SubjectType: r.Subject.Label,
				SubjectName: strings.TrimSpace(m[r.Subject.Group]),
				Relation:    r.Relation,
				ObjectType:  r.Object.Label,
				ObjectName:  strings.TrimSpace(m[r.Object.Group]),
			})
		}
	}
	return triples
}
