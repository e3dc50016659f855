package composition

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	eachPattern  = regexp.MustCompile(`(?s)\{\{#each\s+([\w.]+)\s*\}\}(.*?)\{\{/each\}\}`)
	thisPattern  = regexp.MustCompile(`\{\{this(?:\.(\w+))?\}\}`)
	indexPattern = regexp.MustCompile(`\{\{@index\}\}`)
)

// LoopExpander implements pipeline step 4: Handlebars-style
// {{#each collection}}...{{/each}} loops over arrays found in
// Context.ContextVars, with {{this}}, {{this.field}}, and {{@index}}
// substitution inside the loop body. Grounded on
// transformers/loops.py's LoopExpander.
type LoopExpander struct{}

func NewLoopExpander() *LoopExpander { return &LoopExpander{} }

func (t *LoopExpander) Transform(content string, ctx *Context) string {
	return eachPattern.ReplaceAllStringFunc(content, func(m string) string {
		groups := eachPattern.FindStringSubmatch(m)
		collectionPath, template := groups[1], groups[2]
		return expandLoop(collectionPath, template, ctx)
	})
}

func expandLoop(collectionPath, template string, ctx *Context) string {
	collection := lookupContextCollection(collectionPath, ctx)
	if collection == nil {
		return ""
	}

	items, ok := collection.([]any)
	if !ok {
		return fmt.Sprintf("<!-- ERROR: %s is not a list -->", collectionPath)
	}

	ctx.LoopsExpanded++

	var b strings.Builder
	for i, item := range items {
		b.WriteString(expandLoopItem(template, item, i))
	}
	return b.String()
}

// lookupContextCollection mirrors LoopExpander._get_collection: first a
// direct key lookup, then dotted-path traversal, both against ContextVars.
func lookupContextCollection(path string, ctx *Context) any {
	if v, ok := ctx.ContextVars[path]; ok {
		return v
	}

	var cur any = ctx.ContextVars
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

func expandLoopItem(template string, item any, index int) string {
	result := indexPattern.ReplaceAllString(template, strconv.Itoa(index))

	result = thisPattern.ReplaceAllStringFunc(result, func(m string) string {
		groups := thisPattern.FindStringSubmatch(m)
		prop := groups[1]
		if prop == "" {
			if item == nil {
				return ""
			}
			return fmt.Sprintf("%v", item)
		}
		if asMap, ok := item.(map[string]any); ok {
			if v, ok := asMap[prop]; ok {
				return fmt.Sprintf("%v", v)
			}
		}
		return ""
	})

	return result
}
