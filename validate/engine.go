// Package validate implements spec.md §4.5: a wave-based executor that runs
// heterogeneous validators (local CLI tools and delegated instructions)
// against a task, with fallback, evidence capture, and per-validator report
// persistence.
package validate

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
)

// Verdict is a validator's outcome, per spec.md §4.5.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictBlocked Verdict = "blocked"
	VerdictPending Verdict = "pending"
	VerdictError   Verdict = "error"
)

// FollowUpTask is a task spawned by a validator result, e.g. a delegation
// instruction or a remediation item.
type FollowUpTask struct {
	Type    string `yaml:"type" json:"type"`
	Title   string `yaml:"title" json:"title"`
	Body    string `yaml:"body,omitempty" json:"body,omitempty"`
	Blocked bool   `yaml:"blocked,omitempty" json:"blocked,omitempty"`
}

// Result is an engine's parsed outcome before it is persisted as a report.
type Result struct {
	Verdict    Verdict
	Summary    string
	Findings   []string
	Strengths  []string
	FollowUps  []FollowUpTask
	RawOutput  string
	DurationMS int64
}

// IsDelegation reports whether Result is a delegated-instruction handoff
// that must not be persisted as a report (spec.md §4.5 step 5).
func (r Result) IsDelegation() bool {
	for _, f := range r.FollowUps {
		if f.Type == "delegation" {
			return true
		}
	}
	return false
}

// ValidatorSpec is spec.md §3's validator configuration.
type ValidatorSpec struct {
	ID              string   `yaml:"id"`
	Wave            string   `yaml:"wave"`
	Engine          string   `yaml:"engine"`
	FallbackEngine  string   `yaml:"fallback_engine,omitempty"`
	PromptPath      string   `yaml:"prompt_path,omitempty"`
	Blocking        bool     `yaml:"blocking,omitempty"`
	AlwaysRun       bool     `yaml:"always_run,omitempty"`
	Timeout         int      `yaml:"timeout,omitempty"` // seconds, 0 means the two-minute default
	Triggers        []string `yaml:"triggers,omitempty"`
	Focus           []string `yaml:"focus,omitempty"`
	Context7Required bool    `yaml:"context7_required,omitempty"`
}

func (v ValidatorSpec) timeout() time.Duration {
	if v.Timeout > 0 {
		return time.Duration(v.Timeout) * time.Second
	}
	return 2 * time.Minute
}

// Engine is the abstraction spec.md §4.5 names: CLIEngine and
// DelegatedEngine are its two implementations.
type Engine interface {
	// CanExecute reports whether this engine is usable right now (e.g. the
	// configured CLI binary exists on PATH).
	CanExecute() bool
	// Execute runs the validator and returns its parsed result.
	Execute(ctx context.Context, v ValidatorSpec, params ExecutionParams) (Result, error)
}

// ExecutionParams carries the per-run context an engine needs to build its
// command line or delegated instructions.
type ExecutionParams struct {
	TaskID        string
	SessionID     string
	WorktreePath  string
	Round         int
	EvidenceDir   string
}

// EngineConfig configures a CLIEngine's command line, per spec.md §4.5.
type EngineConfig struct {
	Command        string
	Subcommand     string
	OutputFlags    []string
	ReadOnlyFlags  []string
	ResponseParser string // keys into the parser registry: codex, claude, gemini, auggie, coderabbit, plain_text
}

// CLIEngine shells out to a local binary and parses its stdout with a named
// parser from the registry.
type CLIEngine struct {
	Config   EngineConfig
	Parsers  *ParserRegistry
	Logger   *log.Logger
	lookPath func(string) (string, error) // overridable for tests
}

// NewCLIEngine builds a CLIEngine against the real PATH lookup.
func NewCLIEngine(cfg EngineConfig, parsers *ParserRegistry, logger *log.Logger) *CLIEngine {
	if logger == nil {
		logger = log.Default().With("component", "validate.cli_engine")
	}
	return &CLIEngine{Config: cfg, Parsers: parsers, Logger: logger, lookPath: exec.LookPath}
}

// CanExecute reports whether the configured command resolves on PATH.
func (e *CLIEngine) CanExecute() bool {
	if e.Config.Command == "" {
		return false
	}
	_, err := e.lookPath(e.Config.Command)
	return err == nil
}

// Execute runs the configured command with ValidatorSpec's timeout and
// parses stdout with the configured parser, per spec.md §4.5's "exit code 0
// + unambiguous verdict in output drives the verdict; ambiguity → pending".
func (e *CLIEngine) Execute(ctx context.Context, v ValidatorSpec, params ExecutionParams) (Result, error) {
	parser, ok := e.Parsers.Get(e.Config.ResponseParser)
	if !ok {
		return Result{}, edisonerrors.New(edisonerrors.KindValidator, "unknown response parser: "+e.Config.ResponseParser)
	}

	args := []string{}
	if e.Config.Subcommand != "" {
		args = append(args, e.Config.Subcommand)
	}
	args = append(args, e.Config.OutputFlags...)
	args = append(args, e.Config.ReadOnlyFlags...)

	cctx, cancel := context.WithTimeout(ctx, v.timeout())
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(cctx, e.Config.Command, args...)
	cmd.Dir = params.WorktreePath
	var out bytes.Buffer
	cmd.Stdout, cmd.Stderr = &out, &out
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if cctx.Err() == context.DeadlineExceeded {
		return Result{}, edisonerrors.New(edisonerrors.KindValidator, "validator "+v.ID+" timed out after "+v.timeout().String())
	}

	result, err := parser(out.Bytes())
	if err != nil {
		e.Logger.Warn("validator output unparseable, treating as pending", "validator", v.ID, "error", err)
		result = Result{Verdict: VerdictPending, Summary: "unparseable output"}
	}
	result.RawOutput = out.String()
	result.DurationMS = elapsed.Milliseconds()

	if runErr != nil {
		result.Verdict = VerdictError
		result.Summary = "engine exited non-zero"
	}
	return result, nil
}

// DelegatedEngine never executes a process: it generates Markdown
// instructions for a human/agent collaborator and returns a pending verdict
// with a delegation follow-up, per spec.md §4.5.
type DelegatedEngine struct {
	Role string // the zen role this validator is delegated to
}

// CanExecute always returns false: delegated validators are never
// "executable" in the wave partition sense.
func (e *DelegatedEngine) CanExecute() bool { return false }

// Execute builds the delegated instruction body.
func (e *DelegatedEngine) Execute(ctx context.Context, v ValidatorSpec, params ExecutionParams) (Result, error) {
	body := buildDelegationInstructions(e.Role, v, params)
	return Result{
		Verdict: VerdictPending,
		Summary: "delegated to " + e.Role,
		FollowUps: []FollowUpTask{{
			Type:  "delegation",
			Title: "Run validator " + v.ID + " (" + e.Role + ")",
			Body:  body,
		}},
	}, nil
}

func buildDelegationInstructions(role string, v ValidatorSpec, params ExecutionParams) string {
	var b bytes.Buffer
	b.WriteString("# Delegated validation: " + v.ID + "\n\n")
	b.WriteString("- role: " + role + "\n")
	b.WriteString("- prompt: " + v.PromptPath + "\n")
	b.WriteString("- worktree: " + params.WorktreePath + "\n")
	b.WriteString("- round: " + strconv.Itoa(params.Round) + "\n")
	if len(v.Focus) > 0 {
		b.WriteString("- focus: ")
		for i, f := range v.Focus {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ResolveEngine picks a validator's executable engine: primary first, then
// fallback, then (nil, false), per spec.md §4.5's fallback rule. RunWave
// routes a validator with no executable engine to its delegated bucket,
// which records a blocked verdict only when neither engine name is
// configured at all.
func ResolveEngine(v ValidatorSpec, byName map[string]Engine) (Engine, bool) {
	if primary, ok := byName[v.Engine]; ok && primary.CanExecute() {
		return primary, true
	}
	if v.FallbackEngine != "" {
		if fb, ok := byName[v.FallbackEngine]; ok && fb.CanExecute() {
			return fb, true
		}
	}
	return nil, false
}
