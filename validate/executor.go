package validate

import (
	"context"

	"github.com/charmbracelet/log"
)

// WaveOrder names the configured sequence of waves to run, mapping wave
// name to its validator roster (spec.md: "a validator registry keyed by
// wave name").
type WaveOrder struct {
	Names   []string
	Roster  map[string][]ValidatorSpec
}

// ExecutionResult is the top-level aggregate spec.md §4.5 names: per-wave
// results, summary counts, and an overall status.
type ExecutionResult struct {
	TaskID  string
	Round   int
	Waves   []WaveResult
	Total   int
	Passed  int
	Failed  int
	Pending int
	Status  string // "completed" or "awaiting_delegation"
}

func (r *ExecutionResult) tally(wave WaveResult) {
	for _, v := range wave.Validators {
		r.Total++
		switch {
		case v.Delegated || v.Blocked:
			r.Pending++
		case v.Report != nil && v.Report.Verdict == VerdictApprove:
			r.Passed++
		case v.Report != nil && v.Report.Verdict == VerdictPending:
			r.Pending++
		default:
			r.Failed++
		}
	}
}

func (r *ExecutionResult) hasDelegation() bool {
	for _, wave := range r.Waves {
		for _, v := range wave.Validators {
			if v.Delegated {
				return true
			}
		}
	}
	return false
}

// Run executes validators for (taskID, sessionID) across wave order,
// stopping at the first wave with a blocking failure, per spec.md §4.5's
// top-level Run(ctx, task, session, wave, filter) contract.
func Run(ctx context.Context, sched *Scheduler, order WaveOrder, taskID, sessionID string, waveFilter string, validatorFilter, extras []string, changedFiles []string, worktreePath string) (*ExecutionResult, error) {
	logger := sched.Logger
	if logger == nil {
		logger = log.Default().With("component", "validate.executor")
	}

	round, err := sched.Evidence.NextRound(taskID)
	if err != nil {
		return nil, err
	}
	// Reuse the latest existing round rather than always starting a fresh
	// one. A round is allocated here only when the task has none yet; Run
	// never advances past an existing round, whatever its reports say.
	if existing, err := sched.Evidence.ExistingRounds(taskID); err == nil && len(existing) > 0 {
		round = existing[len(existing)-1]
	}

	params := ExecutionParams{TaskID: taskID, SessionID: sessionID, WorktreePath: worktreePath, Round: round, EvidenceDir: sched.Evidence.taskDir(taskID)}

	result := &ExecutionResult{TaskID: taskID, Round: round}

	for _, name := range order.Names {
		if waveFilter != "" && waveFilter != name {
			continue
		}
		roster, ok := order.Roster[name]
		if !ok {
			continue
		}
		selected := SelectValidators(roster, changedFiles, validatorFilter, extras)
		if len(selected) == 0 {
			continue
		}

		logger.Info("running wave", "wave", name, "validators", len(selected))
		wave, err := sched.RunWave(ctx, name, selected, taskID, round, params)
		if err != nil {
			return nil, err
		}
		result.Waves = append(result.Waves, wave)
		result.tally(wave)

		if !wave.BlockingPassed {
			logger.Warn("wave blocked, halting further waves", "wave", name)
			break
		}
	}

	result.Status = "completed"
	if result.hasDelegation() {
		result.Status = "awaiting_delegation"
	}
	return result, nil
}
