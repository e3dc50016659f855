package validate

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/entity"
	"github.com/leeroybrun/edison-sub004/internal/edisonfs"
)

// EvidenceService owns a task's evidence round directories under
// <qa-root>/<evidence-subdir>/<task_id>/round-N/, enforcing spec.md §4.5's
// "dense and monotonic" round allocation invariant: round N requires rounds
// 1..N-1 to already exist.
type EvidenceService struct {
	QARoot        string
	EvidenceSubdir string // conventionally "evidence"
}

func (s *EvidenceService) taskDir(taskID string) string {
	return filepath.Join(s.QARoot, s.EvidenceSubdir, taskID)
}

func (s *EvidenceService) roundDir(taskID string, round int) string {
	return filepath.Join(s.taskDir(taskID), "round-"+strconv.Itoa(round))
}

// ExistingRounds lists the round numbers already materialized for taskID,
// sorted ascending.
func (s *EvidenceService) ExistingRounds(taskID string) ([]int, error) {
	entries, err := os.ReadDir(s.taskDir(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "list evidence rounds for "+taskID, err)
	}
	var rounds []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "round-") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), "round-"))
		if err != nil {
			continue
		}
		rounds = append(rounds, n)
	}
	sort.Ints(rounds)
	return rounds, nil
}

// NextRound returns the next round number to allocate (len(existing)+1,
// since rounds start at 1 and must be dense).
func (s *EvidenceService) NextRound(taskID string) (int, error) {
	rounds, err := s.ExistingRounds(taskID)
	if err != nil {
		return 0, err
	}
	return len(rounds) + 1, nil
}

// EnsureRound creates round's directory, failing closed if round skips
// ahead of the dense sequence (round N requires 1..N-1 to already exist).
func (s *EvidenceService) EnsureRound(taskID string, round int) (string, error) {
	if round < 1 {
		return "", edisonerrors.New(edisonerrors.KindValidator, "evidence round must be >= 1, got "+strconv.Itoa(round))
	}
	existing, err := s.ExistingRounds(taskID)
	if err != nil {
		return "", err
	}
	if round > len(existing)+1 {
		return "", edisonerrors.New(edisonerrors.KindValidator, "evidence rounds must be dense: cannot create round "+strconv.Itoa(round)+" with only "+strconv.Itoa(len(existing))+" prior round(s)").
			WithRemediation("create the missing intermediate rounds first")
	}
	dir := s.roundDir(taskID, round)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindPersistence, "create evidence round directory", err)
	}
	return dir, nil
}

// WriteCommandCapture writes a validator's raw stdout/stderr to
// command-<validatorID>.txt in round's directory.
func (s *EvidenceService) WriteCommandCapture(taskID string, round int, validatorID, output string) error {
	dir, err := s.EnsureRound(taskID, round)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "command-"+validatorID+".txt")
	return edisonfs.WriteFileAtomic(path, []byte(output), 0o644)
}

// ReportPath returns the canonical path for validatorID's report in round.
func (s *EvidenceService) ReportPath(taskID string, round int, validatorID string) string {
	return filepath.Join(s.roundDir(taskID, round), "validator-"+validatorID+"-report.md")
}

// ExistingReport returns a round's already-written report for validatorID,
// if any, used by the wave scheduler's reuse check (spec.md §4.5 step 3).
func (s *EvidenceService) ExistingReport(taskID string, round int, validatorID string) (*Report, bool, error) {
	path := s.ReportPath(taskID, round, validatorID)
	if _, err := os.Stat(path); err != nil {
		return nil, false, nil
	}
	report, err := LoadReport(path)
	if err != nil {
		return nil, false, err
	}
	return report, true, nil
}

// BundleApprovedPath returns the cluster-level approval summary path for a
// bundle root's evidence round.
func (s *EvidenceService) BundleApprovedPath(bundleRootID string, round int) string {
	return filepath.Join(s.roundDir(bundleRootID, round), "bundle-approved.md")
}

// MirrorBundleApproval writes the bundle-root's approval summary into every
// descendant task's evidence round directory too, per spec.md §8 scenario
// 4 ("bundle-approved summary propagates to descendant tasks").
func (s *EvidenceService) MirrorBundleApproval(bundleRootID string, round int, descendantIDs []string, summary string) error {
	primary := s.BundleApprovedPath(bundleRootID, round)
	if _, err := s.EnsureRound(bundleRootID, round); err != nil {
		return err
	}
	if err := edisonfs.WriteFileAtomic(primary, []byte(summary), 0o644); err != nil {
		return err
	}
	for _, id := range descendantIDs {
		if _, err := s.EnsureRound(id, round); err != nil {
			return err
		}
		path := s.BundleApprovedPath(id, round)
		if err := edisonfs.WriteFileAtomic(path, []byte(summary), 0o644); err != nil {
			return err
		}
	}
	return nil
}

// BundleApproval is the cluster-level summary mirrored into a bundle root's
// and every descendant's evidence round, per spec.md §8 scenario 4: "all
// three carry approved=true and rootTask=P".
type BundleApproval struct {
	Approved bool   `yaml:"approved"`
	RootTask string `yaml:"rootTask"`
	Round    int    `yaml:"round"`
}

func (b BundleApproval) render() ([]byte, error) {
	fm, err := entity.EncodeFrontmatter(b)
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "encode bundle approval summary", err)
	}
	body := "Bundle " + b.RootTask + " approved at round " + strconv.Itoa(b.Round) + "."
	return entity.RenderFrontmatter(fm, body)
}

// RunBundleValidation implements spec.md §8 scenario 4: "run bundle
// validation at P" gathers a bundle root's descendants, confirms every
// blocking validator's report at round is an approve for the root and each
// descendant, and — only if all of them pass — writes and mirrors the
// approved=true/rootTask=<id> summary to every member. It reports ok=false
// without writing anything when any blocking report is missing or isn't an
// approve.
func (s *EvidenceService) RunBundleValidation(bundleRootID string, round int, descendantIDs []string, blocking []ValidatorSpec) (bool, error) {
	members := append([]string{bundleRootID}, descendantIDs...)
	for _, taskID := range members {
		for _, v := range blocking {
			if !v.Blocking {
				continue
			}
			report, ok, err := s.ExistingReport(taskID, round, v.ID)
			if err != nil {
				return false, err
			}
			if !ok || report.Verdict != VerdictApprove {
				return false, nil
			}
		}
	}

	raw, err := BundleApproval{Approved: true, RootTask: bundleRootID, Round: round}.render()
	if err != nil {
		return false, err
	}
	if err := s.MirrorBundleApproval(bundleRootID, round, descendantIDs, string(raw)); err != nil {
		return false, err
	}
	return true, nil
}

// WriteImplementationReport writes the free-form implementation summary a
// task's author produces once, shared across all validators in a round.
func (s *EvidenceService) WriteImplementationReport(taskID string, round int, content string) error {
	dir, err := s.EnsureRound(taskID, round)
	if err != nil {
		return err
	}
	return edisonfs.WriteFileAtomic(filepath.Join(dir, "implementation-report.md"), []byte(content), 0o644)
}
