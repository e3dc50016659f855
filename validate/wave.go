package validate

import (
	"context"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// WaveResult aggregates one wave's validator outcomes.
type WaveResult struct {
	Name             string
	Validators       []ValidatorRunResult
	BlockingPassed   bool
	DelegatedBlocking bool
}

// ValidatorRunResult pairs a validator spec with what happened to it.
type ValidatorRunResult struct {
	Validator ValidatorSpec
	Report    *Report // nil when delegated or blocked
	Result    Result
	Reused    bool
	Delegated bool
	Blocked   bool
}

// EngineSet resolves a validator's configured engine name to an Engine
// implementation (both executable and delegated engines share one
// namespace, keyed by the name used in ValidatorSpec.Engine/FallbackEngine).
type EngineSet map[string]Engine

// Scheduler runs waves of validators against a task, per spec.md §4.5.
type Scheduler struct {
	Engines   EngineSet
	Evidence  *EvidenceService
	Parallel  int // bounded worker pool size within a wave; 0 means sequential
	Logger    *log.Logger
}

// NewScheduler builds a Scheduler with spec.md §5's default worker pool
// size of 4.
func NewScheduler(engines EngineSet, evidence *EvidenceService) *Scheduler {
	return &Scheduler{Engines: engines, Evidence: evidence, Parallel: 4, Logger: log.Default().With("component", "validate.wave")}
}

// matchesTriggers reports whether any of v's trigger glob patterns matches
// any changed file, via doublestar's `**`-aware matching.
func matchesTriggers(triggers []string, changedFiles []string) bool {
	for _, pattern := range triggers {
		for _, f := range changedFiles {
			if ok, _ := doublestar.Match(pattern, f); ok {
				return true
			}
		}
	}
	return false
}

// SelectValidators narrows roster to those triggered by changedFiles, plus
// always_run, plus an explicit filter, plus orchestrator-supplied extras —
// spec.md §4.5 step 2.
func SelectValidators(roster []ValidatorSpec, changedFiles []string, filter, extras []string) []ValidatorSpec {
	want := map[string]bool{}
	for _, id := range filter {
		want[id] = true
	}
	for _, id := range extras {
		want[id] = true
	}
	explicit := len(filter) > 0

	var out []ValidatorSpec
	for _, v := range roster {
		switch {
		case want[v.ID]:
			out = append(out, v)
		case v.AlwaysRun:
			out = append(out, v)
		case !explicit && matchesTriggers(v.Triggers, changedFiles):
			out = append(out, v)
		}
	}
	return out
}

// RunWave executes one wave's validators: reused reports first, then
// partitions the remainder into executable (parallel, bounded) and
// delegated (sequential), per spec.md §4.5 steps 3-6.
func (s *Scheduler) RunWave(ctx context.Context, waveName string, roster []ValidatorSpec, taskID string, round int, params ExecutionParams) (WaveResult, error) {
	result := WaveResult{Name: waveName, BlockingPassed: true}

	var executable, delegated, reused []ValidatorSpec
	reusedReports := map[string]*Report{}

	for _, v := range roster {
		if report, ok, err := s.Evidence.ExistingReport(taskID, round, v.ID); err != nil {
			return result, err
		} else if ok && report.IsReusable(taskID, round) {
			reused = append(reused, v)
			reusedReports[v.ID] = report
			continue
		}

		if _, ok := ResolveEngine(v, s.Engines); ok {
			executable = append(executable, v)
		} else {
			delegated = append(delegated, v)
		}
	}

	for _, v := range reused {
		report := reusedReports[v.ID]
		result.Validators = append(result.Validators, ValidatorRunResult{Validator: v, Report: report, Reused: true})
		if v.Blocking && report.Verdict != VerdictApprove {
			result.BlockingPassed = false
		}
	}

	runResults, err := s.runExecutable(ctx, executable, taskID, round, params)
	if err != nil {
		return result, err
	}
	result.Validators = append(result.Validators, runResults...)
	for _, r := range runResults {
		if r.Validator.Blocking && !r.Delegated && (r.Report == nil || r.Report.Verdict != VerdictApprove) {
			result.BlockingPassed = false
		}
	}

	for _, v := range delegated {
		r, err := s.runDelegated(ctx, v, params)
		if err != nil {
			return result, err
		}
		result.Validators = append(result.Validators, r)
		if v.Blocking {
			switch {
			case r.Delegated:
				result.DelegatedBlocking = true
			case r.Blocked:
				result.BlockingPassed = false
			}
		}
	}

	return result, nil
}

// resolveConfiguredEngine looks up v's engine by name without requiring
// CanExecute: a DelegatedEngine is never "executable" in ResolveEngine's
// sense but is still the correct engine to run once a validator has already
// been routed to the delegated bucket.
func resolveConfiguredEngine(v ValidatorSpec, byName map[string]Engine) (Engine, bool) {
	if eng, ok := byName[v.Engine]; ok {
		return eng, true
	}
	if v.FallbackEngine != "" {
		if eng, ok := byName[v.FallbackEngine]; ok {
			return eng, true
		}
	}
	return nil, false
}

// runDelegated executes a validator already routed to the delegated bucket,
// producing its handoff instructions without writing a report (spec.md
// §4.5 step 5).
func (s *Scheduler) runDelegated(ctx context.Context, v ValidatorSpec, params ExecutionParams) (ValidatorRunResult, error) {
	engine, ok := resolveConfiguredEngine(v, s.Engines)
	if !ok {
		return ValidatorRunResult{Validator: v, Blocked: true, Result: Result{Verdict: VerdictBlocked, Summary: "no engine configured"}}, nil
	}
	result, err := engine.Execute(ctx, v, params)
	if err != nil {
		return ValidatorRunResult{}, err
	}
	return ValidatorRunResult{Validator: v, Delegated: true, Result: result}, nil
}

func (s *Scheduler) runExecutable(ctx context.Context, validators []ValidatorSpec, taskID string, round int, params ExecutionParams) ([]ValidatorRunResult, error) {
	if len(validators) == 0 {
		return nil, nil
	}
	limit := s.Parallel
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	out := make([]ValidatorRunResult, len(validators))
	var mu sync.Mutex

	for i, v := range validators {
		i, v := i, v
		g.Go(func() error {
			r, err := s.runOne(gctx, v, taskID, round, params)
			if err != nil {
				s.Logger.Error("validator failed", "validator", v.ID, "error", err)
				r = ValidatorRunResult{Validator: v, Result: Result{Verdict: VerdictError, Summary: err.Error()}}
			}
			mu.Lock()
			out[i] = r
			mu.Unlock()
			return nil // fail-soft per validator: one crash doesn't poison the wave
		})
	}
	_ = g.Wait()
	return out, nil
}

func (s *Scheduler) runOne(ctx context.Context, v ValidatorSpec, taskID string, round int, params ExecutionParams) (ValidatorRunResult, error) {
	engine, ok := ResolveEngine(v, s.Engines)
	if !ok {
		return ValidatorRunResult{Validator: v, Blocked: true, Result: Result{Verdict: VerdictBlocked, Summary: "no engine available"}}, nil
	}

	start := time.Now()
	result, err := engine.Execute(ctx, v, params)
	if err != nil {
		return ValidatorRunResult{}, err
	}

	if result.IsDelegation() {
		return ValidatorRunResult{Validator: v, Delegated: true, Result: result}, nil
	}

	if result.RawOutput != "" {
		if err := s.Evidence.WriteCommandCapture(taskID, round, v.ID, result.RawOutput); err != nil {
			return ValidatorRunResult{}, err
		}
	}

	report := NewReport(taskID, round, v.ID, result, start)
	if err := report.Persist(s.Evidence.ReportPath(taskID, round, v.ID), false); err != nil {
		return ValidatorRunResult{}, err
	}
	return ValidatorRunResult{Validator: v, Report: &report, Result: result}, nil
}
