package entity

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/internal/edisonfs"
)

// DimensionScores is the result of ComputeDimensionScores: a per-dimension
// raw score plus the weighted overall, independent of pass/fail verdict.
// Grounded on qa/scoring/scoring.py's `compute_dimension_scores`.
type DimensionScores struct {
	PerDimension map[string]float64 `json:"perDimension" yaml:"perDimension"`
	OverallScore float64            `json:"overallScore" yaml:"overallScore"`
}

// ComputeDimensionScores weights each dimension's raw 0-10 score by its
// configured weight (weights must sum to a positive value; spec.md's
// supplement says they should sum to 100, but the original only requires
// positivity, so this mirrors that looser check rather than hard-failing a
// roster that sums to, say, 99).
func ComputeDimensionScores(dimensions map[string]int, results map[string]float64) (DimensionScores, error) {
	if len(dimensions) == 0 {
		return DimensionScores{}, edisonerrors.New(edisonerrors.KindConfig, "dimensions mapping must not be empty")
	}
	totalWeight := 0
	for _, w := range dimensions {
		totalWeight += w
	}
	if totalWeight <= 0 {
		return DimensionScores{}, edisonerrors.New(edisonerrors.KindConfig, "dimension weights must sum to a positive value")
	}

	perDimension := make(map[string]float64, len(dimensions))
	weightedSum := 0.0
	for name, weight := range dimensions {
		raw := results[name]
		perDimension[name] = raw
		weightedSum += raw * float64(weight)
	}

	return DimensionScores{
		PerDimension: perDimension,
		OverallScore: weightedSum / float64(totalWeight),
	}, nil
}

// ScoreEntry is one JSONL-persisted validation score record, grounded on
// qa/scoring/scoring.py's `track_validation_score` entry shape.
type ScoreEntry struct {
	Timestamp    string             `json:"timestamp"`
	SessionID    string             `json:"session_id"`
	Validator    string             `json:"validator"`
	Scores       map[string]float64 `json:"scores"`
	OverallScore float64            `json:"overall_score"`
}

// ScoreHistory is a per-session JSONL-backed append log of validation
// scores, grounded on qa/scoring/scoring.py's `_score_history_file`
// (`<qa-root>/score-history/<session_id>.jsonl`).
type ScoreHistory struct {
	dir string
}

// NewScoreHistory builds a ScoreHistory rooted at <qaRoot>/score-history.
func NewScoreHistory(qaRoot string) *ScoreHistory {
	return &ScoreHistory{dir: filepath.Join(qaRoot, "score-history")}
}

func (h *ScoreHistory) path(sessionID string) string {
	return filepath.Join(h.dir, sessionID+".jsonl")
}

// Track appends a validation score record to the session's history,
// matching track_validation_score.
func (h *ScoreHistory) Track(sessionID, validator string, scores map[string]float64, overall float64) error {
	entry := ScoreEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		SessionID:    sessionID,
		Validator:    validator,
		Scores:       scores,
		OverallScore: overall,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "marshal score entry", err)
	}
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "create score history directory", err)
	}

	release, err := edisonfs.NewLock(h.path(sessionID) + ".lock").Acquire(5 * time.Second)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "acquire score history lock", err)
	}
	defer release()

	f, err := os.OpenFile(h.path(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "open score history file", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "append score history entry", err)
	}
	return nil
}

// Get returns a session's score history ordered by timestamp, matching
// get_score_history (malformed lines are skipped rather than failing the
// whole read, matching the original's try/except per-line tolerance).
func (h *ScoreHistory) Get(sessionID string) ([]ScoreEntry, error) {
	f, err := os.Open(h.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "open score history file", err)
	}
	defer f.Close()

	var entries []ScoreEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var e ScoreEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp < entries[j].Timestamp })
	return entries, nil
}

// RegressionResult is the verdict from DetectRegression, grounded on
// qa/scoring/scoring.py's `_regression_details`.
type RegressionResult struct {
	IsRegression    bool
	PreviousScore   float64
	CurrentScore    float64
	Delta           float64
	Severity        string // "HIGH" or "MEDIUM"; empty when no regression
	Suggestion      string
}

// DetectRegression flags when currentScore drops more than threshold below
// the most recent tracked score for sessionID, with HIGH severity at a drop
// of 2.0 points or more and MEDIUM otherwise. No history means no
// regression, matching detect_regression's empty-history short circuit.
func (h *ScoreHistory) DetectRegression(sessionID string, currentScore, threshold float64) (RegressionResult, error) {
	hist, err := h.Get(sessionID)
	if err != nil {
		return RegressionResult{}, err
	}
	if len(hist) == 0 {
		return RegressionResult{CurrentScore: currentScore}, nil
	}
	previous := hist[len(hist)-1].OverallScore
	delta := currentScore - previous

	if threshold < 0 {
		threshold = -threshold
	}
	if delta < -threshold {
		severity := "MEDIUM"
		if delta <= -2.0 {
			severity = "HIGH"
		}
		return RegressionResult{
			IsRegression:  true,
			PreviousScore: previous,
			CurrentScore:  currentScore,
			Delta:         delta,
			Severity:      severity,
			Suggestion:    "Investigate recent changes; review score history and address failing dimensions.",
		}, nil
	}
	return RegressionResult{PreviousScore: previous, CurrentScore: currentScore, Delta: delta}, nil
}
