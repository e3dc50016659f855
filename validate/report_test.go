package validate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeroybrun/edison-sub004/entity"
)

func TestReportPersistAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.md")

	report := NewReport("task-1", 2, "v1", Result{
		Verdict:   VerdictReject,
		Summary:   "found an issue",
		Findings:  []string{"off-by-one"},
		Strengths: []string{"good tests"},
	}, time.Now())
	report = report.WithScores(entity.DimensionScores{PerDimension: map[string]float64{"correctness": 7}, OverallScore: 7})

	require.NoError(t, report.Persist(path, false))

	loaded, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, "task-1", loaded.TaskID)
	assert.Equal(t, 2, loaded.Round)
	assert.Equal(t, VerdictReject, loaded.Verdict)
	assert.Equal(t, []string{"off-by-one"}, loaded.Findings)
	assert.InDelta(t, 7.0, loaded.Scores.OverallScore, 0.001)
}

func TestReportPersistRefusesOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.md")
	report := NewReport("task-1", 1, "v1", Result{Verdict: VerdictApprove, Summary: "ok"}, time.Now())

	require.NoError(t, report.Persist(path, false))
	err := report.Persist(path, false)
	assert.Error(t, err)
}

func TestReportPersistForceOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.md")
	first := NewReport("task-1", 1, "v1", Result{Verdict: VerdictApprove, Summary: "first"}, time.Now())
	require.NoError(t, first.Persist(path, false))

	second := NewReport("task-1", 1, "v1", Result{Verdict: VerdictReject, Summary: "second"}, time.Now())
	require.NoError(t, second.Persist(path, true))

	loaded, err := LoadReport(path)
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, loaded.Verdict)
}

func TestReportIsReusable(t *testing.T) {
	report := NewReport("task-1", 1, "v1", Result{Verdict: VerdictApprove}, time.Now())
	assert.True(t, report.IsReusable("task-1", 1))
	assert.False(t, report.IsReusable("task-2", 1))
	assert.False(t, report.IsReusable("task-1", 2))
}

func TestReportIsReusableFalseWhenVerdictEmpty(t *testing.T) {
	report := NewReport("task-1", 1, "v1", Result{}, time.Now())
	assert.False(t, report.IsReusable("task-1", 1))
}
