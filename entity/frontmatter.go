package entity

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
)

// frontmatterDelim is the YAML frontmatter fence, matching the Markdown
// convention used throughout original_source/src/edison/core/task/compat.py
// and qa/compat.py's `---\n...\n---\n` file format.
const frontmatterDelim = "---"

// Document is a parsed Markdown file: the YAML frontmatter (as a raw map,
// decoded into a caller-supplied struct) and the Markdown body that follows
// the closing fence.
type Document struct {
	Frontmatter map[string]any
	Body        string
}

// ParseFrontmatter splits raw into YAML frontmatter and Markdown body. A file
// with no leading `---` fence is treated as body-only with empty
// frontmatter, matching compat.py's tolerance for legacy plain-Markdown
// files during migration.
func ParseFrontmatter(raw []byte) (*Document, error) {
	text := string(raw)
	text = strings.TrimPrefix(text, "﻿")

	if !strings.HasPrefix(strings.TrimLeft(text, "\r\n"), frontmatterDelim) {
		return &Document{Frontmatter: map[string]any{}, Body: text}, nil
	}

	trimmed := strings.TrimLeft(text, "\r\n")
	rest := strings.TrimPrefix(trimmed, frontmatterDelim)
	rest = strings.TrimPrefix(rest, "\n")
	rest = strings.TrimPrefix(rest, "\r\n")

	closeIdx := strings.Index(rest, "\n"+frontmatterDelim)
	if closeIdx == -1 {
		return nil, edisonerrors.New(edisonerrors.KindPersistence, "frontmatter opening fence has no closing fence")
	}

	fmBlock := rest[:closeIdx]
	after := rest[closeIdx+len("\n"+frontmatterDelim):]
	after = strings.TrimPrefix(after, "\r")
	after = strings.TrimPrefix(after, "\n")

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(fmBlock), &fm); err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "parse frontmatter YAML", err)
	}
	if fm == nil {
		fm = map[string]any{}
	}
	if _, hasState := fm["state"]; hasState {
		return nil, edisonerrors.New(edisonerrors.KindPersistence, "frontmatter must not carry a state key; state is derived from directory")
	}

	return &Document{Frontmatter: fm, Body: after}, nil
}

// RenderFrontmatter serializes frontmatter as a YAML block wrapped in `---`
// fences followed by body, refusing to serialize a `state` key into
// frontmatter: state is derived solely from the containing directory
// (spec.md §3.2), and a persisted `state` key would let frontmatter and
// directory drift apart.
func RenderFrontmatter(frontmatter map[string]any, body string) ([]byte, error) {
	if _, hasState := frontmatter["state"]; hasState {
		return nil, edisonerrors.New(edisonerrors.KindPersistence, "refusing to write a state key into frontmatter; state is directory-derived")
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(frontmatter); err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "encode frontmatter YAML", err)
	}
	_ = enc.Close()

	var out bytes.Buffer
	out.WriteString(frontmatterDelim)
	out.WriteByte('\n')
	out.Write(buf.Bytes())
	out.WriteString(frontmatterDelim)
	out.WriteByte('\n')
	if body != "" {
		out.WriteString(body)
	}
	return out.Bytes(), nil
}

// DecodeFrontmatter re-marshals a raw frontmatter map into dst via YAML,
// letting callers reuse the same struct tags they use for RenderFrontmatter.
func DecodeFrontmatter(frontmatter map[string]any, dst any) error {
	data, err := yaml.Marshal(frontmatter)
	if err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "re-marshal frontmatter", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return edisonerrors.Wrap(edisonerrors.KindPersistence, "decode frontmatter into struct", err)
	}
	return nil
}

// EncodeFrontmatter marshals src (a struct with yaml tags) into a
// map[string]any suitable for RenderFrontmatter.
func EncodeFrontmatter(src any) (map[string]any, error) {
	data, err := yaml.Marshal(src)
	if err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "marshal frontmatter struct", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, edisonerrors.Wrap(edisonerrors.KindPersistence, "round-trip frontmatter struct", err)
	}
	return out, nil
}
