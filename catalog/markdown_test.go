package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSections(t *testing.T) {
	source := []byte(`Some opening words before any heading.

# Chapter One

First chapter body.

## A subsection stays inside its chapter

More of chapter one.

# Chapter Two

Second chapter body.
`)

	sections := ParseSections(source)

	require.Len(t, sections, 3)

	assert.Equal(t, "Introduction", sections[0].Title)
	assert.Equal(t, "Some opening words before any heading.", sections[0].Content)

	assert.Equal(t, "Chapter One", sections[1].Title)
	assert.Contains(t, sections[1].Content, "First chapter body.")
	assert.Contains(t, sections[1].Content, "## A subsection stays inside its chapter")

	assert.Equal(t, "Chapter Two", sections[2].Title)
	assert.Equal(t, "Second chapter body.", sections[2].Content)
}

func TestParseSectionsNoHeadings(t *testing.T) {
	sections := ParseSections([]byte("Just plain prose without structure."))

	require.Len(t, sections, 1)
	assert.Equal(t, "Introduction", sections[0].Title)
	assert.Equal(t, "Just plain prose without structure.", sections[0].Content)
}

func TestParseSectionsNoLeadingContent(t *testing.T) {
	sections := ParseSections([]byte("# Only Chapter\n\nBody text.\n"))

	require.Len(t, sections, 1)
	assert.Equal(t, "Only Chapter", sections[0].Title)
	assert.Equal(t, "Body text.", sections[0].Content)
}

func TestParseSectionsEmptyInput(t *testing.T) {
	assert.Empty(t, ParseSections(nil))
	assert.Empty(t, ParseSections([]byte("   \n\n")))
}

func TestParseSectionsSkipsEmptyBodies(t *testing.T) {
	sections := ParseSections([]byte("# Empty Chapter\n\n# Full Chapter\n\ncontent\n"))

	require.Len(t, sections, 1)
	assert.Equal(t, "Full Chapter", sections[0].Title)
}
