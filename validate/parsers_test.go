package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyVerdictApprove(t *testing.T) {
	assert.Equal(t, VerdictApprove, classifyVerdict("looks fine\nVerdict: approved"))
}

func TestClassifyVerdictReject(t *testing.T) {
	assert.Equal(t, VerdictReject, classifyVerdict("found a bug\nrejected"))
}

func TestClassifyVerdictBlocked(t *testing.T) {
	assert.Equal(t, VerdictBlocked, classifyVerdict("missing prerequisite\nblocked"))
}

func TestClassifyVerdictAmbiguousIsPending(t *testing.T) {
	assert.Equal(t, VerdictPending, classifyVerdict("no clear signal here\nstill thinking"))
}

func TestParseCodex(t *testing.T) {
	raw := "Summary line\n- finding: off-by-one in loop\n- strength: good test coverage\napproved\n"
	result, err := parseCodex([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, VerdictApprove, result.Verdict)
	assert.Equal(t, "Summary line", result.Summary)
	assert.Equal(t, []string{"off-by-one in loop"}, result.Findings)
	assert.Equal(t, []string{"good test coverage"}, result.Strengths)
}

func TestParseClaude(t *testing.T) {
	raw := "Review complete\nFinding: missing nil check\nStrength: clear naming\nrejected\n"
	result, err := parseClaude([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, result.Verdict)
	assert.Equal(t, []string{"missing nil check"}, result.Findings)
	assert.Equal(t, []string{"clear naming"}, result.Strengths)
}

func TestParseGeminiMirrorsClaude(t *testing.T) {
	raw := "Done\nFinding: leaking goroutine\napproved\n"
	result, err := parseGemini([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"leaking goroutine"}, result.Findings)
}

func TestParseAuggie(t *testing.T) {
	raw := "Scan finished\n* Issue: unchecked error return\nblocked\n"
	result, err := parseAuggie([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, VerdictBlocked, result.Verdict)
	assert.Equal(t, []string{"unchecked error return"}, result.Findings)
}

func TestParseCoderabbit(t *testing.T) {
	raw := "Review\n**Issue**: duplicate import\napproved\n"
	result, err := parseCoderabbit([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"duplicate import"}, result.Findings)
}

func TestParsePlainText(t *testing.T) {
	raw := "just some unstructured commentary\napproved\n"
	result, err := parsePlainText([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, VerdictApprove, result.Verdict)
	assert.Equal(t, "just some unstructured commentary", result.Summary)
	assert.Empty(t, result.Findings)
}

func TestParserRegistryLookup(t *testing.T) {
	reg := NewParserRegistry()
	for _, name := range []string{"codex", "claude", "gemini", "auggie", "coderabbit", "plain_text"} {
		_, ok := reg.Get(name)
		assert.True(t, ok, "expected parser %q to be registered", name)
	}
	_, ok := reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestParserRegistryRegisterOverrides(t *testing.T) {
	reg := NewParserRegistry()
	reg.Register("plain_text", func(raw []byte) (Result, error) {
		return Result{Verdict: VerdictBlocked}, nil
	})
	p, ok := reg.Get("plain_text")
	require.True(t, ok)
	result, err := p([]byte("anything"))
	require.NoError(t, err)
	assert.Equal(t, VerdictBlocked, result.Verdict)
}
