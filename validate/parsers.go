package validate

import (
	"bufio"
	"bytes"
	"regexp"
	"strings"
)

// Parser turns one engine's raw stdout into a Result. Registered by name
// (the config's response_parser field) so CLIEngine stays generic across
// heterogeneous tool output formats.
type Parser func(raw []byte) (Result, error)

// ParserRegistry is a build-time-populated lookup of named parsers, per
// spec.md §9's guidance against runtime plugin loading for this kind of
// declarative, fixed-shape extension point.
type ParserRegistry struct {
	parsers map[string]Parser
}

// NewParserRegistry builds a registry preloaded with the built-in parsers
// spec.md §4.5 names: codex, claude, gemini, auggie, coderabbit, plain_text.
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{parsers: map[string]Parser{}}
	r.Register("codex", parseCodex)
	r.Register("claude", parseClaude)
	r.Register("gemini", parseGemini)
	r.Register("auggie", parseAuggie)
	r.Register("coderabbit", parseCoderabbit)
	r.Register("plain_text", parsePlainText)
	return r
}

// Register adds or overrides a named parser.
func (r *ParserRegistry) Register(name string, p Parser) {
	r.parsers[name] = p
}

// Get looks up a named parser.
func (r *ParserRegistry) Get(name string) (Parser, bool) {
	p, ok := r.parsers[name]
	return p, ok
}

var verdictPattern = regexp.MustCompile(`(?i)\b(approved?|rejected?|blocked)\b`)

// classifyVerdict applies the keyword heuristic most agent CLIs converge on
// when they don't emit a structured verdict field: scanning from the end,
// the last line that contains an approve/reject/blocked keyword decides (by
// the first keyword on that line); with no such line the verdict is pending.
func classifyVerdict(text string) Verdict {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		m := verdictPattern.FindString(line)
		if m == "" {
			continue
		}
		switch strings.ToLower(m) {
		case "approve", "approved":
			return VerdictApprove
		case "reject", "rejected":
			return VerdictReject
		case "blocked":
			return VerdictBlocked
		}
	}
	return VerdictPending
}

func extractLines(prefix, text string) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader([]byte(text)))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			out = append(out, strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)))
		}
	}
	return out
}

// parseCodex understands codex-cli's "- finding: ..." / "- strength: ..."
// bullet convention alongside a trailing verdict keyword.
func parseCodex(raw []byte) (Result, error) {
	text := string(raw)
	return Result{
		Verdict:   classifyVerdict(text),
		Summary:   firstNonEmptyLine(text),
		Findings:  extractLines("- finding:", text),
		Strengths: extractLines("- strength:", text),
	}, nil
}

// parseClaude understands Claude CLI's "Finding:"/"Strength:" line
// convention.
func parseClaude(raw []byte) (Result, error) {
	text := string(raw)
	return Result{
		Verdict:   classifyVerdict(text),
		Summary:   firstNonEmptyLine(text),
		Findings:  extractLines("Finding:", text),
		Strengths: extractLines("Strength:", text),
	}, nil
}

// parseGemini mirrors parseClaude's shape; gemini-cli's review output uses
// the same line-prefix convention.
func parseGemini(raw []byte) (Result, error) {
	return parseClaude(raw)
}

// parseAuggie understands auggie's "* Issue:" bullet style.
func parseAuggie(raw []byte) (Result, error) {
	text := string(raw)
	return Result{
		Verdict:  classifyVerdict(text),
		Summary:  firstNonEmptyLine(text),
		Findings: extractLines("* Issue:", text),
	}, nil
}

// parseCoderabbit understands coderabbit's "**Issue**:" markdown-bold
// prefix convention.
func parseCoderabbit(raw []byte) (Result, error) {
	text := string(raw)
	return Result{
		Verdict:  classifyVerdict(text),
		Summary:  firstNonEmptyLine(text),
		Findings: extractLines("**Issue**:", text),
	}, nil
}

// parsePlainText is the fallback: no structured extraction, verdict
// classified from keywords alone.
func parsePlainText(raw []byte) (Result, error) {
	text := string(raw)
	return Result{
		Verdict: classifyVerdict(text),
		Summary: firstNonEmptyLine(text),
	}, nil
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
