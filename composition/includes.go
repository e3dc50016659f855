package composition

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const defaultMaxIncludeDepth = 10

var (
	includePattern         = regexp.MustCompile(`\{\{include:([^}]+)\}\}`)
	includeOptionalPattern = regexp.MustCompile(`\{\{include-optional:([^}]+)\}\}`)
	includeSectionPattern  = regexp.MustCompile(`\{\{include-section:([^#]+)#([^}]+)\}\}`)
)

// IncludeTransformer implements pipeline steps 1-2: resolving
// {{include:path}}/{{include-optional:path}} and then
// {{include-section:path#name}}, grounded on transformers/includes.py's
// IncludeTransformer (which itself wraps IncludeResolver and
// SectionExtractor in that order).
type IncludeTransformer struct {
	MaxDepth int
}

func NewIncludeTransformer() *IncludeTransformer {
	return &IncludeTransformer{MaxDepth: defaultMaxIncludeDepth}
}

func (t *IncludeTransformer) Transform(content string, ctx *Context) string {
	maxDepth := t.MaxDepth
	if maxDepth == 0 {
		maxDepth = defaultMaxIncludeDepth
	}
	content = resolveIncludes(content, ctx, maxDepth, 0, map[string]bool{})
	content = extractIncludeSections(content, ctx)
	return content
}

func resolveIncludes(content string, ctx *Context, maxDepth, depth int, seen map[string]bool) string {
	if depth > maxDepth {
		return content
	}

	content = includePattern.ReplaceAllStringFunc(content, func(m string) string {
		path := strings.TrimSpace(includePattern.FindStringSubmatch(m)[1])
		return resolveSingleInclude(path, ctx, maxDepth, depth, seen, true)
	})

	content = includeOptionalPattern.ReplaceAllStringFunc(content, func(m string) string {
		path := strings.TrimSpace(includeOptionalPattern.FindStringSubmatch(m)[1])
		return resolveSingleInclude(path, ctx, maxDepth, depth, seen, false)
	})

	return content
}

func resolveSingleInclude(path string, ctx *Context, maxDepth, depth int, seen map[string]bool, required bool) string {
	if seen[path] {
		return fmt.Sprintf("<!-- ERROR: Circular include detected: %s -->", path)
	}

	fullPath, ok := resolveIncludePath(path, ctx)
	if !ok {
		if required {
			return fmt.Sprintf("<!-- ERROR: Include not found: %s -->", path)
		}
		return ""
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if required {
			return fmt.Sprintf("<!-- ERROR: Failed to include %s: %v -->", path, err)
		}
		return ""
	}

	ctx.RecordInclude(path)

	newSeen := make(map[string]bool, len(seen)+1)
	for k := range seen {
		newSeen[k] = true
	}
	newSeen[path] = true

	return resolveIncludes(string(data), ctx, maxDepth, depth+1, newSeen)
}

// resolveIncludePath searches source_dir then project_root, matching
// IncludeResolver._resolve_path's two-tier search order.
func resolveIncludePath(path string, ctx *Context) (string, bool) {
	if ctx.SourceDir != "" {
		candidate := filepath.Join(ctx.SourceDir, path)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	if ctx.ProjectRoot != "" {
		candidate := filepath.Join(ctx.ProjectRoot, path)
		if fileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func extractIncludeSections(content string, ctx *Context) string {
	return includeSectionPattern.ReplaceAllStringFunc(content, func(m string) string {
		groups := includeSectionPattern.FindStringSubmatch(m)
		filePath := strings.TrimSpace(groups[1])
		sectionName := strings.TrimSpace(groups[2])
		return extractFileSection(filePath, sectionName, ctx)
	})
}

func extractFileSection(filePath, sectionName string, ctx *Context) string {
	fullPath, ok := resolveIncludePath(filePath, ctx)
	if !ok {
		return fmt.Sprintf("<!-- ERROR: File not found for section extract: %s -->", filePath)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Sprintf("<!-- ERROR: Failed to extract section %s from %s: %v -->", sectionName, filePath, err)
	}

	section, found := extractSection(string(data), sectionName)
	if !found {
		return fmt.Sprintf("<!-- ERROR: Section '%s' not found in %s -->", sectionName, filePath)
	}

	ctx.RecordSectionExtract(filePath, sectionName)
	return section
}
