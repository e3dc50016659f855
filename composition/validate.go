package composition

import "regexp"

var unresolvedMarkerPattern = regexp.MustCompile(`\{\{[^}]+\}\}`)

// ValidationTransformer implements pipeline step 9: record any template
// marker the earlier eight steps left unresolved, then strip the SECTION
// comment markers that step 1-2 relied on for extraction. Grounded on
// engine.py's ValidationTransformer.
type ValidationTransformer struct{}

func NewValidationTransformer() *ValidationTransformer { return &ValidationTransformer{} }

func (t *ValidationTransformer) Transform(content string, ctx *Context) string {
	for _, marker := range unresolvedMarkerPattern.FindAllString(content, -1) {
		ctx.RecordVariable(marker, false)
	}
	return stripSectionMarkers(content)
}
