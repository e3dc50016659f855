package composition

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Report summarizes one composition run: which layers contributed, which
// includes/sections/variables were touched, and any warnings or errors
// accumulated along the way. Grounded on
// original_source/src/edison/core/composition/core/report.py's
// CompositionReport.
type Report struct {
	EntityName string
	EntityType string
	Timestamp  time.Time

	SourceLayers []string

	IncludesResolved      []string
	SectionsExtracted     []string
	VariablesSubstituted  []string
	VariablesMissing      []string
	ConditionalsEvaluated int
	LoopsExpanded         int

	Warnings []string
	Errors   []string
}

// SourceLayerString renders SourceLayers as "core + pack1 + pack2 + project".
func (r *Report) SourceLayerString() string {
	if len(r.SourceLayers) == 0 {
		return "core"
	}
	return strings.Join(r.SourceLayers, " + ")
}

// HasIssues reports whether the run produced any warning, error, or missing
// variable.
func (r *Report) HasIssues() bool {
	return len(r.Warnings) > 0 || len(r.Errors) > 0 || len(r.VariablesMissing) > 0
}

func (r *Report) AddWarning(msg string) { r.Warnings = append(r.Warnings, msg) }
func (r *Report) AddError(msg string)   { r.Errors = append(r.Errors, msg) }

// Summary renders a short human-readable report, matching
// CompositionReport.summary()'s shape (first three warnings/errors only).
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Composition Report: %s/%s\n", r.EntityType, r.EntityName)
	fmt.Fprintf(&b, "  Layers: %s\n", r.SourceLayerString())
	fmt.Fprintf(&b, "  Includes: %d\n", len(r.IncludesResolved))
	fmt.Fprintf(&b, "  Sections: %d\n", len(r.SectionsExtracted))
	fmt.Fprintf(&b, "  Variables: %d resolved, %d missing\n", len(r.VariablesSubstituted), len(r.VariablesMissing))
	fmt.Fprintf(&b, "  Conditionals: %d", r.ConditionalsEvaluated)

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "\n  Warnings: %d", len(r.Warnings))
		for _, w := range firstN(r.Warnings, 3) {
			fmt.Fprintf(&b, "\n    - %s", w)
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "\n  Errors: %d", len(r.Errors))
		for _, e := range firstN(r.Errors, 3) {
			fmt.Fprintf(&b, "\n    - %s", e)
		}
	}
	return b.String()
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// BatchReport aggregates Reports across many entities composed together,
// e.g. one pass over every agent persona in a pack. Grounded on
// core/report.py's BatchCompositionReport.
type BatchReport struct {
	EntityType string
	Timestamp  time.Time
	Reports    []*Report
}

func (b *BatchReport) TotalCount() int { return len(b.Reports) }

func (b *BatchReport) SuccessCount() int {
	n := 0
	for _, r := range b.Reports {
		if len(r.Errors) == 0 {
			n++
		}
	}
	return n
}

func (b *BatchReport) WarningCount() int {
	n := 0
	for _, r := range b.Reports {
		if len(r.Warnings) > 0 {
			n++
		}
	}
	return n
}

func (b *BatchReport) ErrorCount() int {
	n := 0
	for _, r := range b.Reports {
		if len(r.Errors) > 0 {
			n++
		}
	}
	return n
}

func (b *BatchReport) AddReport(r *Report) { b.Reports = append(b.Reports, r) }
