package validate

import (
	"github.com/leeroybrun/edison-sub004/entity"
)

// ScoringConfig names the dimension weights a roster of validators scores
// against, loaded from the same composed config layer as the validator
// roster itself.
type ScoringConfig struct {
	Dimensions        map[string]int
	RegressionThreshold float64
}

func (c ScoringConfig) threshold() float64 {
	if c.RegressionThreshold > 0 {
		return c.RegressionThreshold
	}
	return 0.5
}

// ScoreAndTrack computes a report's dimension scores from raw per-dimension
// results, attaches them to the report, appends the score to the session's
// history, and returns the regression check against the session's prior
// score — wiring entity's §3 QA scoring supplement into report persistence.
func ScoreAndTrack(history *entity.ScoreHistory, cfg ScoringConfig, report Report, sessionID, validatorID string, rawResults map[string]float64) (Report, entity.RegressionResult, error) {
	scores, err := entity.ComputeDimensionScores(cfg.Dimensions, rawResults)
	if err != nil {
		return report, entity.RegressionResult{}, err
	}
	report = report.WithScores(scores)

	// Regression is measured against history as it stood before this
	// round's score is appended.
	regression, err := history.DetectRegression(sessionID, scores.OverallScore, cfg.threshold())
	if err != nil {
		return report, entity.RegressionResult{}, err
	}
	if err := history.Track(sessionID, validatorID, scores.PerDimension, scores.OverallScore); err != nil {
		return report, entity.RegressionResult{}, err
	}
	return report, regression, nil
}
