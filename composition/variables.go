package composition

import (
	"fmt"
	"path/filepath"
	"regexp"
)

var (
	configVarPattern  = regexp.MustCompile(`\{\{config\.([a-zA-Z_][\w.]*)\}\}`)
	contextVarPattern = regexp.MustCompile(`\{\{(source_layers|timestamp|version|template)\}\}`)
	pathVarPattern    = regexp.MustCompile(`\{\{PROJECT_EDISON_DIR\}\}`)
)

// VariableTransformer implements pipeline steps 5-7: config variables
// ({{config.a.b}}), context variables ({{source_layers}}, {{timestamp}},
// {{version}}, {{template}}), and the {{PROJECT_EDISON_DIR}} path variable.
// Grounded on transformers/variables.py's three sub-transformers, combined
// here as one Transformer in the same order the original's
// VariableTransformer.transform composes them.
type VariableTransformer struct{}

func NewVariableTransformer() *VariableTransformer { return &VariableTransformer{} }

func (t *VariableTransformer) Transform(content string, ctx *Context) string {
	content = substituteConfigVars(content, ctx)
	content = substituteContextVars(content, ctx)
	content = substitutePathVars(content, ctx)
	return content
}

func substituteConfigVars(content string, ctx *Context) string {
	return configVarPattern.ReplaceAllStringFunc(content, func(m string) string {
		path := configVarPattern.FindStringSubmatch(m)[1]
		value := ctx.GetConfig(path)
		if value == nil {
			ctx.RecordVariable("config."+path, false)
			return m
		}
		ctx.RecordVariable("config."+path, true)
		return fmt.Sprintf("%v", value)
	})
}

func substituteContextVars(content string, ctx *Context) string {
	return contextVarPattern.ReplaceAllStringFunc(content, func(m string) string {
		name := contextVarPattern.FindStringSubmatch(m)[1]
		value, ok := ctx.ContextVars[name]
		if !ok || value == nil {
			ctx.RecordVariable(name, false)
			return m
		}
		ctx.RecordVariable(name, true)
		return fmt.Sprintf("%v", value)
	})
}

func substitutePathVars(content string, ctx *Context) string {
	if ctx.ProjectRoot == "" {
		return content
	}
	edisonDir := filepath.Join(ctx.ProjectRoot, ".edison")
	return pathVarPattern.ReplaceAllStringFunc(content, func(m string) string {
		ctx.RecordVariable("PROJECT_EDISON_DIR", true)
		return edisonDir
	})
}
