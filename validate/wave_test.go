package validate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesTriggers(t *testing.T) {
	assert.True(t, matchesTriggers([]string{"**/*.go"}, []string{"internal/foo/bar.go"}))
	assert.False(t, matchesTriggers([]string{"**/*.go"}, []string{"README.md"}))
}

func TestSelectValidatorsAlwaysRun(t *testing.T) {
	roster := []ValidatorSpec{{ID: "a", AlwaysRun: true}, {ID: "b", Triggers: []string{"**/*.go"}}}
	selected := SelectValidators(roster, []string{"README.md"}, nil, nil)
	require.Len(t, selected, 1)
	assert.Equal(t, "a", selected[0].ID)
}

func TestSelectValidatorsTriggerMatch(t *testing.T) {
	roster := []ValidatorSpec{{ID: "a", Triggers: []string{"**/*.go"}}}
	selected := SelectValidators(roster, []string{"pkg/file.go"}, nil, nil)
	require.Len(t, selected, 1)
	assert.Equal(t, "a", selected[0].ID)
}

func TestSelectValidatorsExplicitFilterSkipsTriggerMatch(t *testing.T) {
	roster := []ValidatorSpec{
		{ID: "a", Triggers: []string{"**/*.go"}},
		{ID: "b"},
	}
	selected := SelectValidators(roster, []string{"pkg/file.go"}, []string{"b"}, nil)
	require.Len(t, selected, 1)
	assert.Equal(t, "b", selected[0].ID)
}

func TestSelectValidatorsExtras(t *testing.T) {
	roster := []ValidatorSpec{{ID: "a"}, {ID: "b"}}
	selected := SelectValidators(roster, nil, nil, []string{"a"})
	require.Len(t, selected, 1)
	assert.Equal(t, "a", selected[0].ID)
}

type fixedResultEngine struct {
	executable bool
	result     Result
}

func (e *fixedResultEngine) CanExecute() bool { return e.executable }
func (e *fixedResultEngine) Execute(ctx context.Context, v ValidatorSpec, params ExecutionParams) (Result, error) {
	return e.result, nil
}

func newTestScheduler(t *testing.T, engines EngineSet) *Scheduler {
	t.Helper()
	sched := NewScheduler(engines, &EvidenceService{QARoot: t.TempDir(), EvidenceSubdir: "evidence"})
	sched.Parallel = 2
	return sched
}

func TestRunWaveExecutesApprovingValidator(t *testing.T) {
	engines := EngineSet{"codex": &fixedResultEngine{executable: true, result: Result{Verdict: VerdictApprove, Summary: "good"}}}
	sched := newTestScheduler(t, engines)

	roster := []ValidatorSpec{{ID: "v1", Engine: "codex", Blocking: true}}
	wave, err := sched.RunWave(context.Background(), "implementation", roster, "task-1", 1, ExecutionParams{TaskID: "task-1", Round: 1})
	require.NoError(t, err)
	assert.True(t, wave.BlockingPassed)
	require.Len(t, wave.Validators, 1)
	require.NotNil(t, wave.Validators[0].Report)
	assert.Equal(t, VerdictApprove, wave.Validators[0].Report.Verdict)
}

func TestRunWaveBlockingFailureFlips(t *testing.T) {
	engines := EngineSet{"codex": &fixedResultEngine{executable: true, result: Result{Verdict: VerdictReject, Summary: "bad"}}}
	sched := newTestScheduler(t, engines)

	roster := []ValidatorSpec{{ID: "v1", Engine: "codex", Blocking: true}}
	wave, err := sched.RunWave(context.Background(), "implementation", roster, "task-1", 1, ExecutionParams{TaskID: "task-1", Round: 1})
	require.NoError(t, err)
	assert.False(t, wave.BlockingPassed)
}

func TestRunWaveNonBlockingFailureDoesNotFlip(t *testing.T) {
	engines := EngineSet{"codex": &fixedResultEngine{executable: true, result: Result{Verdict: VerdictReject, Summary: "bad"}}}
	sched := newTestScheduler(t, engines)

	roster := []ValidatorSpec{{ID: "v1", Engine: "codex", Blocking: false}}
	wave, err := sched.RunWave(context.Background(), "implementation", roster, "task-1", 1, ExecutionParams{TaskID: "task-1", Round: 1})
	require.NoError(t, err)
	assert.True(t, wave.BlockingPassed)
}

func TestRunWaveReusesExistingReport(t *testing.T) {
	engines := EngineSet{"codex": &fixedResultEngine{executable: true, result: Result{Verdict: VerdictReject}}}
	sched := newTestScheduler(t, engines)
	roster := []ValidatorSpec{{ID: "v1", Engine: "codex", Blocking: true}}

	existing := NewReport("task-1", 1, "v1", Result{Verdict: VerdictApprove, Summary: "already approved"}, time.Now())
	require.NoError(t, existing.Persist(sched.Evidence.ReportPath("task-1", 1, "v1"), false))

	wave, err := sched.RunWave(context.Background(), "implementation", roster, "task-1", 1, ExecutionParams{TaskID: "task-1", Round: 1})
	require.NoError(t, err)
	require.Len(t, wave.Validators, 1)
	assert.True(t, wave.Validators[0].Reused)
	assert.True(t, wave.BlockingPassed)
}

func TestRunWaveDelegatesWhenNoEngineExecutable(t *testing.T) {
	engines := EngineSet{"zen": &DelegatedEngine{Role: "security-reviewer"}}
	sched := newTestScheduler(t, engines)

	roster := []ValidatorSpec{{ID: "sec-1", Engine: "zen", Blocking: true}}
	wave, err := sched.RunWave(context.Background(), "implementation", roster, "task-1", 1, ExecutionParams{TaskID: "task-1", Round: 1})
	require.NoError(t, err)
	require.Len(t, wave.Validators, 1)
	assert.True(t, wave.Validators[0].Delegated)
	assert.True(t, wave.DelegatedBlocking)
	assert.Nil(t, wave.Validators[0].Report, "delegated validators must not persist a report")
}

func TestRunWaveBlockedWhenNoEngineConfigured(t *testing.T) {
	sched := newTestScheduler(t, EngineSet{})
	roster := []ValidatorSpec{{ID: "v1", Engine: "missing", Blocking: true}}

	wave, err := sched.RunWave(context.Background(), "implementation", roster, "task-1", 1, ExecutionParams{TaskID: "task-1", Round: 1})
	require.NoError(t, err)
	require.Len(t, wave.Validators, 1)
	assert.True(t, wave.Validators[0].Blocked)
	assert.False(t, wave.BlockingPassed, "a blocked blocking validator must fail the wave")
}
