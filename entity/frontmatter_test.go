package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontmatterRoundTrip(t *testing.T) {
	raw := []byte("---\nid: abc\ntitle: Hello\n---\nBody text here.\n")
	doc, err := ParseFrontmatter(raw)
	require.NoError(t, err)
	assert.Equal(t, "abc", doc.Frontmatter["id"])
	assert.Equal(t, "Hello", doc.Frontmatter["title"])
	assert.Equal(t, "Body text here.\n", doc.Body)

	out, err := RenderFrontmatter(doc.Frontmatter, doc.Body)
	require.NoError(t, err)

	doc2, err := ParseFrontmatter(out)
	require.NoError(t, err)
	assert.Equal(t, doc.Frontmatter, doc2.Frontmatter)
	assert.Equal(t, doc.Body, doc2.Body)
}

func TestParseFrontmatterBodyOnly(t *testing.T) {
	doc, err := ParseFrontmatter([]byte("just a markdown body\n"))
	require.NoError(t, err)
	assert.Empty(t, doc.Frontmatter)
	assert.Equal(t, "just a markdown body\n", doc.Body)
}

func TestParseFrontmatterUnclosedFence(t *testing.T) {
	_, err := ParseFrontmatter([]byte("---\nid: abc\nno closing fence"))
	assert.Error(t, err)
}

func TestParseFrontmatterRejectsStateKey(t *testing.T) {
	_, err := ParseFrontmatter([]byte("---\nstate: todo\n---\nbody"))
	assert.Error(t, err)
}

func TestRenderFrontmatterRejectsStateKey(t *testing.T) {
	_, err := RenderFrontmatter(map[string]any{"state": "todo"}, "body")
	assert.Error(t, err)
}

func TestEncodeDecodeFrontmatter(t *testing.T) {
	task := &Task{ID: "t1", Title: "Example"}
	fm, err := EncodeFrontmatter(task)
	require.NoError(t, err)
	assert.Equal(t, "t1", fm["id"])

	var decoded Task
	require.NoError(t, DecodeFrontmatter(fm, &decoded))
	assert.Equal(t, "t1", decoded.ID)
	assert.Equal(t, "Example", decoded.Title)
}
