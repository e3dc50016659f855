package validate

import (
	"os"
	"time"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/entity"
	"github.com/leeroybrun/edison-sub004/internal/edisonfs"
)

// Tracking is a report's timing block, per spec.md §6's evidence report
// schema.
type Tracking struct {
	StartedAt   time.Time `yaml:"startedAt" json:"startedAt"`
	CompletedAt time.Time `yaml:"completedAt" json:"completedAt"`
	DurationMS  int64     `yaml:"duration" json:"duration"`
}

// Report is a single validator's persisted outcome for one task/round, per
// spec.md §6: "Markdown with YAML frontmatter; schema includes taskId,
// round, validatorId, verdict, summary, findings[], strengths[],
// followUpTasks[], tracking{...}, scores{}".
type Report struct {
	TaskID       string             `yaml:"taskId"`
	Round        int                `yaml:"round"`
	ValidatorID  string             `yaml:"validatorId"`
	Verdict      Verdict            `yaml:"verdict"`
	Summary      string             `yaml:"summary"`
	Findings     []string           `yaml:"findings,omitempty"`
	Strengths    []string           `yaml:"strengths,omitempty"`
	FollowUps    []FollowUpTask     `yaml:"followUpTasks,omitempty"`
	Tracking     Tracking           `yaml:"tracking"`
	Scores       entity.DimensionScores `yaml:"scores,omitempty"`
}

// NewReport builds a report from an engine Result, stamping tracking times.
func NewReport(taskID string, round int, validatorID string, result Result, startedAt time.Time) Report {
	return Report{
		TaskID:      taskID,
		Round:       round,
		ValidatorID: validatorID,
		Verdict:     result.Verdict,
		Summary:     result.Summary,
		Findings:    result.Findings,
		Strengths:   result.Strengths,
		FollowUps:   result.FollowUps,
		Tracking: Tracking{
			StartedAt:   startedAt,
			CompletedAt: startedAt.Add(time.Duration(result.DurationMS) * time.Millisecond),
			DurationMS:  result.DurationMS,
		},
	}
}

// WithScores attaches the §3 QA dimension-scoring supplement to a report.
func (r Report) WithScores(scores entity.DimensionScores) Report {
	r.Scores = scores
	return r
}

// Persist writes the report as frontmatter + a short Markdown body summary
// to path, refusing to overwrite an existing report unless force is set —
// "validator report files are owned by the validator that writes them;
// overwrites happen only when a new round starts or the report does not yet
// exist for this round" (spec.md §5).
func (r Report) Persist(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return edisonerrors.New(edisonerrors.KindValidator, "report already exists for this round: "+path).
				WithRemediation("start a new round before re-running this validator, or pass force")
		}
	}

	fm, err := entity.EncodeFrontmatter(r)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "encode validator report", err)
	}
	body := r.Summary
	raw, err := entity.RenderFrontmatter(fm, body)
	if err != nil {
		return err
	}
	return edisonfs.WriteFileAtomic(path, raw, 0o644)
}

// LoadReport reads and decodes a persisted report.
func LoadReport(path string) (*Report, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "read validator report "+path, err)
	}
	doc, err := entity.ParseFrontmatter(raw)
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "parse validator report "+path, err)
	}
	var r Report
	if err := entity.DecodeFrontmatter(doc.Frontmatter, &r); err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "decode validator report "+path, err)
	}
	return &r, nil
}

// IsReusable reports whether an existing report satisfies the wave
// scheduler's reuse check: matching taskID/round and a non-empty verdict
// (spec.md §4.5 step 3).
func (r Report) IsReusable(taskID string, round int) bool {
	return r.TaskID == taskID && r.Round == round && r.Verdict != ""
}
