package composition

import (
	"strings"
	"time"
)

// Engine runs the nine-step transformation pipeline over composed template
// content. Grounded on engine.py's TemplateEngine.
type Engine struct {
	Config      map[string]any
	Packs       []string
	ProjectRoot string
	SourceDir   string

	pipeline *Pipeline
	registry *FunctionRegistry
}

// NewEngine builds an Engine with the fixed nine-step pipeline order from
// spec.md §4.2 / engine.py's TemplateEngine._build_pipeline. registry, when
// non-nil, is shared onto every Context a Process call builds so custom
// functions registered ahead of time are available to
// {{function:}}/{{fn:}} directives.
func NewEngine(config map[string]any, packs []string, projectRoot, sourceDir string, registry *FunctionRegistry) *Engine {
	e := &Engine{Config: config, Packs: packs, ProjectRoot: projectRoot, SourceDir: sourceDir}

	transformers := []Transformer{
		NewIncludeTransformer(),
		NewConditionalTransformer(),
		NewLoopExpander(),
		NewVariableTransformer(),
		NewReferenceTransformer(),
	}
	if registry != nil {
		transformers = append(transformers, &FunctionTransformer{})
	}
	transformers = append(transformers, NewValidationTransformer())

	e.pipeline = NewPipeline(transformers...)
	e.registry = registry
	return e
}

// Process runs content through the pipeline, returning the transformed
// content and a Report describing what happened. entityName/entityType
// identify the composed artifact in the report; sourceLayers lists the
// layers (core, packs, project) that contributed to the pre-pipeline
// composed content, matching engine.py's TemplateEngine.process.
func (e *Engine) Process(content string, entityName, entityType string, sourceLayers []string) (string, *Report) {
	ctx := NewContext(e.Config, e.Packs, e.ProjectRoot, e.SourceDir)
	if e.registry != nil {
		ctx.Functions = e.registry
	}

	sourceLayerDesc := "core"
	if len(sourceLayers) > 0 {
		sourceLayerDesc = strings.Join(sourceLayers, " + ")
	}
	ctx.ContextVars["source_layers"] = sourceLayerDesc
	ctx.ContextVars["timestamp"] = time.Now().Format(time.RFC3339)

	result := e.pipeline.Execute(content, ctx)

	layers := sourceLayers
	if len(layers) == 0 {
		layers = []string{"core"}
	}

	report := &Report{
		EntityName:            entityName,
		EntityType:            entityType,
		Timestamp:             time.Now(),
		SourceLayers:          layers,
		IncludesResolved:      sortedKeys(ctx.IncludesResolved),
		SectionsExtracted:     sortedKeys(ctx.SectionsExtracted),
		VariablesSubstituted:  sortedKeys(ctx.VariablesSubstituted),
		VariablesMissing:      sortedKeys(ctx.VariablesMissing),
		ConditionalsEvaluated: ctx.ConditionalsEvaluated,
		LoopsExpanded:         ctx.LoopsExpanded,
	}
	for _, missing := range report.VariablesMissing {
		report.AddWarning("Unresolved variable: " + missing)
	}

	return result, report
}

// ProcessBatch runs Process over every (name -> content) pair in entities,
// matching engine.py's TemplateEngine.process_batch.
func (e *Engine) ProcessBatch(entities map[string]string, entityType string) map[string]ProcessResult {
	results := make(map[string]ProcessResult, len(entities))
	for name, content := range entities {
		out, report := e.Process(content, name, entityType, nil)
		results[name] = ProcessResult{Content: out, Report: report}
	}
	return results
}

// ProcessResult pairs a composed entity's transformed content with its
// Report, standing in for the original's (str, CompositionReport) tuple
// return value.
type ProcessResult struct {
	Content string
	Report  *Report
}
