// Package eval scores an extraction rule table against datasets of texts
// with known triples.
package eval

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/docgraph/graph"
)

// Report holds the results of an evaluation run.
type Report struct {
	Dataset         string             `json:"dataset"`
	TotalTests      int                `json:"total_tests"`
	Passed          int                `json:"passed"`
	Failed          int                `json:"failed"`
	Metrics         Metrics            `json:"metrics"`
	CategoryMetrics map[string]Metrics `json:"category_metrics,omitempty"`
	Results         []TestResult       `json:"results"`
	RunTime         time.Duration      `json:"run_time"`
}

// Metrics are micro-averaged over every triple in the cases they cover.
type Metrics struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
}

// TestResult holds the outcome of one test case.
type TestResult struct {
	Name       string         `json:"name"`
	Category   string         `json:"category,omitempty"`
	Passed     bool           `json:"passed"`
	Extracted  int            `json:"extracted"`
	Duplicates int            `json:"duplicates"`
	Missing    []graph.Triple `json:"missing,omitempty"`
	Unexpected []graph.Triple `json:"unexpected,omitempty"`
	Metrics    Metrics        `json:"metrics"`
}

// Evaluate runs every case through ex and normalization and compares the
// result with the expected triples as sets.
func Evaluate(ex *graph.Extractor, ds Dataset) *Report {
	start := time.Now()
	report := &Report{
		Dataset:         ds.Name,
		TotalTests:      len(ds.Cases),
		CategoryMetrics: make(map[string]Metrics),
	}

	for i, tc := range ds.Cases {
		res := runCase(ex, tc)
		report.Results = append(report.Results, res)
		if res.Passed {
			report.Passed++
		} else {
			report.Failed++
		}

		report.Metrics = report.Metrics.add(res.Metrics)
		if tc.Category != "" {
			report.CategoryMetrics[tc.Category] = report.CategoryMetrics[tc.Category].add(res.Metrics)
		}

		slog.Debug("eval: case complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(ds.Cases)),
			"name", tc.Name,
			"passed", res.Passed,
			"missing", len(res.Missing),
			"unexpected", len(res.Unexpected))
	}

	report.RunTime = time.Since(start)
	slog.Info("eval: complete", "dataset", ds.Name, "passed", report.Passed, "failed", report.Failed,
		"precision", fmt.Sprintf("%.2f", report.Metrics.Precision),
		"recall", fmt.Sprintf("%.2f", report.Metrics.Recall))
	return report
}

func runCase(ex *graph.Extractor, tc TestCase) TestResult {
	got, stats := graph.Normalize(ex.Extract(tc.Text))
	want, _ := graph.Normalize(tc.Expected)

	wantSet := make(map[graph.Triple]bool, len(want))
	for _, t := range want {
		wantSet[t] = true
	}
	gotSet := make(map[graph.Triple]bool, len(got))
	for _, t := range got {
		gotSet[t] = true
	}

	res := TestResult{
		Name:       tc.Name,
		Category:   tc.Category,
		Extracted:  len(got),
		Duplicates: stats.Duplicates,
	}
	for _, t := range got {
		if wantSet[t] {
			res.Metrics.TruePositives++
		} else {
			res.Unexpected = append(res.Unexpected, t)
		}
	}
	for _, t := range want {
		if !gotSet[t] {
			res.Missing = append(res.Missing, t)
		}
	}
	res.Metrics.FalsePositives = len(res.Unexpected)
	res.Metrics.FalseNegatives = len(res.Missing)
	res.Metrics = res.Metrics.add(Metrics{})
	res.Passed = len(res.Missing) == 0 && len(res.Unexpected) == 0
	return res
}

// add sums the counts of m and o and recomputes the ratios. A ratio with
// an empty denominator is 1: nothing was claimed, so nothing was wrong.
func (m Metrics) add(o Metrics) Metrics {
	s := Metrics{
		TruePositives:  m.TruePositives + o.TruePositives,
		FalsePositives: m.FalsePositives + o.FalsePositives,
		FalseNegatives: m.FalseNegatives + o.FalseNegatives,
	}
	s.Precision = ratio(s.TruePositives, s.TruePositives+s.FalsePositives)
	s.Recall = ratio(s.TruePositives, s.TruePositives+s.FalseNegatives)
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 1
	}
	return float64(n) / float64(d)
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

// FormatReport renders a human-readable summary.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d\n",
		r.TotalTests, r.Passed, passRate(r.Passed, r.TotalTests), r.Failed)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Microsecond))

	fmt.Fprintf(&b, "Aggregate Metrics:\n")
	fmt.Fprintf(&b, "  Precision:  %.2f\n", r.Metrics.Precision)
	fmt.Fprintf(&b, "  Recall:     %.2f\n", r.Metrics.Recall)
	fmt.Fprintf(&b, "  F1:         %.2f\n\n", r.Metrics.F1)

	if len(r.CategoryMetrics) > 0 {
		cats := make([]string, 0, len(r.CategoryMetrics))
		for cat := range r.CategoryMetrics {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Fprintf(&b, "Per-Category Metrics:\n")
		for _, cat := range cats {
			m := r.CategoryMetrics[cat]
			fmt.Fprintf(&b, "  [%s] P=%.2f R=%.2f F1=%.2f\n", cat, m.Precision, m.Recall, m.F1)
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. %s (extracted=%d duplicates=%d)\n", status, i+1, res.Name, res.Extracted, res.Duplicates)
		for _, t := range res.Missing {
			fmt.Fprintf(&b, "  missing:    %s\n", t)
		}
		for _, t := range res.Unexpected {
			fmt.Fprintf(&b, "  unexpected: %s\n", t)
		}
	}
	return b.String()
}
