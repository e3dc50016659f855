// Package composition implements the nine-step template transformation
// pipeline described in spec.md §4.2: includes, section extraction,
// conditionals, loops, three tiers of variable substitution, references, and
// a final validation pass. It is grounded directly on
// original_source/src/edison/core/composition/{engine.py,transformers/*.py},
// reimplemented with Go's regexp package in place of Python's re module and
// with explicit struct fields in place of dataclasses.
package composition

import "strings"

// Context carries everything a Transformer needs: the merged configuration,
// the active pack list, filesystem anchors for resolving includes, loop/
// function data, and the bookkeeping a Report is built from afterward.
// Grounded on transformers/base.py's TransformContext dataclass.
type Context struct {
	Config      map[string]any
	ActivePacks []string

	ProjectRoot string // empty means path/file-existence checks are skipped
	SourceDir   string // directory includes are resolved relative to first

	ContextVars map[string]any
	Functions   *FunctionRegistry

	IncludesResolved      map[string]bool
	SectionsExtracted     map[string]bool
	VariablesSubstituted  map[string]bool
	VariablesMissing      map[string]bool
	ConditionalsEvaluated int
	LoopsExpanded         int
}

// NewContext builds a Context with every tracking set initialized, matching
// the dataclass field(default_factory=...) behavior in the original.
func NewContext(config map[string]any, activePacks []string, projectRoot, sourceDir string) *Context {
	if config == nil {
		config = map[string]any{}
	}
	return &Context{
		Config:               config,
		ActivePacks:          activePacks,
		ProjectRoot:          projectRoot,
		SourceDir:            sourceDir,
		ContextVars:          map[string]any{},
		Functions:            NewFunctionRegistry(),
		IncludesResolved:     map[string]bool{},
		SectionsExtracted:    map[string]bool{},
		VariablesSubstituted: map[string]bool{},
		VariablesMissing:     map[string]bool{},
	}
}

// GetConfig resolves a dot-separated path against Config, returning nil when
// any segment is missing or not a nested map.
func (c *Context) GetConfig(path string) any {
	var cur any = c.Config
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[part]
		if !ok {
			return nil
		}
	}
	return cur
}

func (c *Context) RecordInclude(path string) { c.IncludesResolved[path] = true }

func (c *Context) RecordSectionExtract(path, section string) {
	c.SectionsExtracted[path+"#"+section] = true
}

func (c *Context) RecordVariable(name string, resolved bool) {
	if resolved {
		c.VariablesSubstituted[name] = true
	} else {
		c.VariablesMissing[name] = true
	}
}

// Transformer handles one category of template directive. Implementations
// are stateless; all mutable bookkeeping lives on the Context they receive.
type Transformer interface {
	Transform(content string, ctx *Context) string
}

// TransformerFunc adapts a plain function to the Transformer interface.
type TransformerFunc func(content string, ctx *Context) string

func (f TransformerFunc) Transform(content string, ctx *Context) string { return f(content, ctx) }

// Pipeline executes an ordered list of Transformers, feeding each one's
// output to the next. Grounded on transformers/base.py's TransformerPipeline.
type Pipeline struct {
	Transformers []Transformer
}

func NewPipeline(transformers ...Transformer) *Pipeline {
	return &Pipeline{Transformers: transformers}
}

func (p *Pipeline) Execute(content string, ctx *Context) string {
	result := content
	for _, t := range p.Transformers {
		result = t.Transform(result, ctx)
	}
	return result
}
