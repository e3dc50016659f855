package validate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvidence(t *testing.T) *EvidenceService {
	t.Helper()
	return &EvidenceService{QARoot: t.TempDir(), EvidenceSubdir: "evidence"}
}

func TestEvidenceNextRoundStartsAtOne(t *testing.T) {
	svc := newTestEvidence(t)
	round, err := svc.NextRound("task-1")
	require.NoError(t, err)
	assert.Equal(t, 1, round)
}

func TestEvidenceEnsureRoundDenseSequence(t *testing.T) {
	svc := newTestEvidence(t)
	_, err := svc.EnsureRound("task-1", 1)
	require.NoError(t, err)
	_, err = svc.EnsureRound("task-1", 2)
	require.NoError(t, err)

	_, err = svc.EnsureRound("task-1", 4)
	assert.Error(t, err, "round 4 must not be creatable while only rounds 1-2 exist")
}

func TestEvidenceEnsureRoundRejectsZero(t *testing.T) {
	svc := newTestEvidence(t)
	_, err := svc.EnsureRound("task-1", 0)
	assert.Error(t, err)
}

func TestEvidenceExistingRoundsSorted(t *testing.T) {
	svc := newTestEvidence(t)
	_, err := svc.EnsureRound("task-1", 1)
	require.NoError(t, err)
	_, err = svc.EnsureRound("task-1", 2)
	require.NoError(t, err)
	_, err = svc.EnsureRound("task-1", 3)
	require.NoError(t, err)

	rounds, err := svc.ExistingRounds("task-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, rounds)
}

func TestEvidenceExistingRoundsEmptyWhenMissing(t *testing.T) {
	svc := newTestEvidence(t)
	rounds, err := svc.ExistingRounds("never-seen")
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestEvidenceWriteCommandCapture(t *testing.T) {
	svc := newTestEvidence(t)
	require.NoError(t, svc.WriteCommandCapture("task-1", 1, "v1", "stdout contents"))

	path := filepath.Join(svc.roundDir("task-1", 1), "command-v1.txt")
	assert.FileExists(t, path)
}

func TestEvidenceReportRoundTripAndReuse(t *testing.T) {
	svc := newTestEvidence(t)
	report := NewReport("task-1", 1, "v1", Result{Verdict: VerdictApprove, Summary: "fine"}, time.Now())
	path := svc.ReportPath("task-1", 1, "v1")
	require.NoError(t, svc.WriteCommandCapture("task-1", 1, "v1", "raw"))
	require.NoError(t, report.Persist(path, false))

	loaded, ok, err := svc.ExistingReport("task-1", 1, "v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, VerdictApprove, loaded.Verdict)
}

func TestEvidenceExistingReportMissingIsNotError(t *testing.T) {
	svc := newTestEvidence(t)
	_, ok, err := svc.ExistingReport("task-1", 1, "v1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvidenceMirrorBundleApproval(t *testing.T) {
	svc := newTestEvidence(t)
	require.NoError(t, svc.MirrorBundleApproval("bundle-1", 1, []string{"child-a", "child-b"}, "bundle approved"))

	assert.FileExists(t, svc.BundleApprovedPath("bundle-1", 1))
	assert.FileExists(t, svc.BundleApprovedPath("child-a", 1))
	assert.FileExists(t, svc.BundleApprovedPath("child-b", 1))
}

func persistApprove(t *testing.T, svc *EvidenceService, taskID string, round int, validatorID string) {
	t.Helper()
	report := NewReport(taskID, round, validatorID, Result{Verdict: VerdictApprove, Summary: "looks good"}, time.Now())
	require.NoError(t, report.Persist(svc.ReportPath(taskID, round, validatorID), false))
}

func TestRunBundleValidationApprovesWhenAllBlockingReportsApprove(t *testing.T) {
	svc := newTestEvidence(t)
	blocking := []ValidatorSpec{{ID: "v1", Blocking: true}, {ID: "v2", Blocking: false}}

	for _, taskID := range []string{"P", "C1", "C2"} {
		persistApprove(t, svc, taskID, 1, "v1")
	}

	ok, err := svc.RunBundleValidation("P", 1, []string{"C1", "C2"}, blocking)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, taskID := range []string{"P", "C1", "C2"} {
		path := svc.BundleApprovedPath(taskID, 1)
		assert.FileExists(t, path)
	}
}

func TestRunBundleValidationFailsWhenADescendantIsMissingAReport(t *testing.T) {
	svc := newTestEvidence(t)
	blocking := []ValidatorSpec{{ID: "v1", Blocking: true}}

	persistApprove(t, svc, "P", 1, "v1")
	persistApprove(t, svc, "C1", 1, "v1")
	// C2 has no report at all.

	ok, err := svc.RunBundleValidation("P", 1, []string{"C1", "C2"}, blocking)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoFileExists(t, svc.BundleApprovedPath("P", 1))
}

func TestRunBundleValidationFailsWhenABlockingReportIsNotApprove(t *testing.T) {
	svc := newTestEvidence(t)
	blocking := []ValidatorSpec{{ID: "v1", Blocking: true}}

	persistApprove(t, svc, "P", 1, "v1")
	rejected := NewReport("C1", 1, "v1", Result{Verdict: VerdictReject, Summary: "nope"}, time.Now())
	require.NoError(t, rejected.Persist(svc.ReportPath("C1", 1, "v1"), false))

	ok, err := svc.RunBundleValidation("P", 1, []string{"C1"}, blocking)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunBundleValidationIgnoresNonBlockingValidators(t *testing.T) {
	svc := newTestEvidence(t)
	blocking := []ValidatorSpec{{ID: "v1", Blocking: true}, {ID: "v2", Blocking: false}}

	persistApprove(t, svc, "P", 1, "v1")
	persistApprove(t, svc, "C1", 1, "v1")
	// Neither task has a v2 report at all, but v2 is non-blocking.

	ok, err := svc.RunBundleValidation("P", 1, []string{"C1"}, blocking)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvidenceWriteImplementationReport(t *testing.T) {
	svc := newTestEvidence(t)
	require.NoError(t, svc.WriteImplementationReport("task-1", 1, "implemented the thing"))
	path := filepath.Join(svc.roundDir("task-1", 1), "implementation-report.md")
	assert.FileExists(t, path)
}
