package composition

import (
	"os"
	"regexp"
	"strings"
)

var (
	includeIfPattern = regexp.MustCompile(`(?s)\{\{include-if:([^:]+):([^}]+)\}\}`)
	ifElsePattern    = regexp.MustCompile(`(?s)\{\{if:([^}]+)\}\}(.*?)\{\{else\}\}(.*?)\{\{/if\}\}`)
	ifPattern        = regexp.MustCompile(`(?s)\{\{if:([^}]+)\}\}(.*?)\{\{/if\}\}`)
)

// ConditionalTransformer implements pipeline step 3: {{if:COND}}...{{/if}},
// {{if:COND}}...{{else}}...{{/if}}, and {{include-if:COND:path}}, grounded
// on engine.py's ConditionalTransformer wrapper around
// transformers/conditionals.py's ConditionalProcessor.
type ConditionalTransformer struct{}

func NewConditionalTransformer() *ConditionalTransformer { return &ConditionalTransformer{} }

func (t *ConditionalTransformer) Transform(content string, ctx *Context) string {
	evaluator := NewEvaluator(ctx)

	content = processIfElseBlocks(content, evaluator)
	content = processIfBlocks(content, evaluator)
	content = processConditionalIncludes(content, evaluator, ctx)

	ctx.ConditionalsEvaluated++
	return content
}

// processIfElseBlocks runs before the simple-if pass, matching
// ConditionalProcessor.process_if_blocks's ordering: "if-else blocks first
// (they're more specific)".
func processIfElseBlocks(content string, evaluator *Evaluator) string {
	return ifElsePattern.ReplaceAllStringFunc(content, func(m string) string {
		groups := ifElsePattern.FindStringSubmatch(m)
		condition, trueContent, falseContent := groups[1], groups[2], groups[3]

		ok, err := evaluator.Evaluate(condition)
		if err != nil {
			return m // keep original marker on invalid expression
		}
		if ok {
			return strings.TrimSpace(trueContent)
		}
		return strings.TrimSpace(falseContent)
	})
}

func processIfBlocks(content string, evaluator *Evaluator) string {
	return ifPattern.ReplaceAllStringFunc(content, func(m string) string {
		groups := ifPattern.FindStringSubmatch(m)
		condition, blockContent := groups[1], groups[2]

		ok, err := evaluator.Evaluate(condition)
		if err != nil {
			return m
		}
		if ok {
			return strings.TrimSpace(blockContent)
		}
		return ""
	})
}

func processConditionalIncludes(content string, evaluator *Evaluator, ctx *Context) string {
	return includeIfPattern.ReplaceAllStringFunc(content, func(m string) string {
		groups := includeIfPattern.FindStringSubmatch(m)
		condition, path := groups[1], strings.TrimSpace(groups[2])

		ok, err := evaluator.Evaluate(condition)
		if err != nil {
			return m
		}
		if !ok {
			return ""
		}

		fullPath, found := resolveIncludePath(path, ctx)
		if !found {
			return ""
		}
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return ""
		}
		ctx.RecordInclude(path)
		return string(data)
	})
}
