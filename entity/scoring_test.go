package entity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDimensionScores(t *testing.T) {
	dimensions := map[string]int{"correctness": 60, "style": 40}
	results := map[string]float64{"correctness": 8, "style": 6}

	scores, err := ComputeDimensionScores(dimensions, results)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, scores.PerDimension["correctness"], 0.001)
	assert.InDelta(t, 7.2, scores.OverallScore, 0.001)
}

func TestComputeDimensionScoresRejectsEmpty(t *testing.T) {
	_, err := ComputeDimensionScores(nil, nil)
	assert.Error(t, err)
}

func TestComputeDimensionScoresRejectsZeroWeight(t *testing.T) {
	_, err := ComputeDimensionScores(map[string]int{"a": 0}, map[string]float64{"a": 5})
	assert.Error(t, err)
}

func TestScoreHistoryTrackAndGet(t *testing.T) {
	dir := t.TempDir()
	history := NewScoreHistory(filepath.Join(dir, "qa"))

	require.NoError(t, history.Track("sess-1", "validator-a", map[string]float64{"correctness": 8}, 8.0))
	require.NoError(t, history.Track("sess-1", "validator-a", map[string]float64{"correctness": 9}, 9.0))

	entries, err := history.Get("sess-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "sess-1", entries[0].SessionID)
	assert.InDelta(t, 8.0, entries[0].OverallScore, 0.001)
	assert.InDelta(t, 9.0, entries[1].OverallScore, 0.001)
}

func TestScoreHistoryGetEmptyWhenMissing(t *testing.T) {
	dir := t.TempDir()
	history := NewScoreHistory(dir)
	entries, err := history.Get("never-tracked")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDetectRegressionHighSeverity(t *testing.T) {
	dir := t.TempDir()
	history := NewScoreHistory(dir)
	require.NoError(t, history.Track("sess-1", "v", map[string]float64{"x": 9}, 9.0))

	result, err := history.DetectRegression("sess-1", 6.5, 0.5)
	require.NoError(t, err)
	assert.True(t, result.IsRegression)
	assert.Equal(t, "HIGH", result.Severity)
}

func TestDetectRegressionMediumSeverity(t *testing.T) {
	dir := t.TempDir()
	history := NewScoreHistory(dir)
	require.NoError(t, history.Track("sess-1", "v", map[string]float64{"x": 8}, 8.0))

	result, err := history.DetectRegression("sess-1", 7.5, 0.2)
	require.NoError(t, err)
	assert.True(t, result.IsRegression)
	assert.Equal(t, "MEDIUM", result.Severity)
}

func TestDetectRegressionNoHistoryMeansNoRegression(t *testing.T) {
	dir := t.TempDir()
	history := NewScoreHistory(dir)
	result, err := history.DetectRegression("sess-new", 5.0, 0.5)
	require.NoError(t, err)
	assert.False(t, result.IsRegression)
}
