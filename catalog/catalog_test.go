package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const themesFixture = `[
	{"id": "t1", "label": "Grounding", "description": "Staying present"},
	{"id": "t2", "label": "Safety", "description": "Rebuilding safety"}
]`

const retrievalsFixture = `{
	"Grounding": {
		"label": "Grounding",
		"description": "Staying present",
		"similar_excerpts": [
			{"excerpt": {"text": "breathe slowly", "title": "Body Keeps Score"}, "similarity_score": 0.91}
		]
	}
}`

const metadataFixture = `{
	"Body Keeps Score": {
		"author": "van der Kolk, B.",
		"year": "2014",
		"title": "The Body Keeps the Score",
		"publisher": "Viking",
		"purchase_url": "https://example.org/book"
	}
}`

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixtureDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFixture(t, dir, themesFile, themesFixture)
	writeFixture(t, dir, retrievalsFile, retrievalsFixture)
	writeFixture(t, dir, metadataFile, metadataFixture)
	return dir
}

func TestLoad(t *testing.T) {
	cat, err := Load(fixtureDir(t))
	require.NoError(t, err)

	require.Len(t, cat.Themes, 2)
	assert.Equal(t, "Grounding", cat.Themes[0].Label)

	// retrievals merged by label
	require.Len(t, cat.Themes[0].Excerpts, 1)
	assert.Equal(t, "breathe slowly", cat.Themes[0].Excerpts[0].Excerpt.Text)
	assert.Equal(t, 0.91, cat.Themes[0].Excerpts[0].Similarity)

	// no retrievals entry for Safety, theme still loads
	assert.Empty(t, cat.Themes[1].Excerpts)

	meta, ok := cat.Books["Body Keeps Score"]
	require.True(t, ok)
	assert.Equal(t, "Viking", meta.Publisher)
}

func TestLoadMissingThemesFails(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, retrievalsFile, retrievalsFixture)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load themes")
}

func TestLoadMissingRetrievalsFails(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, themesFile, themesFixture)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load retrievals")
}

func TestLoadMissingMetadataIsOptional(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, themesFile, themesFixture)
	writeFixture(t, dir, retrievalsFile, retrievalsFixture)

	cat, err := Load(dir)
	require.NoError(t, err)
	assert.NotNil(t, cat.Books)
	assert.Empty(t, cat.Books)
}

func TestLoadMalformedThemesFails(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, themesFile, "not json")
	writeFixture(t, dir, retrievalsFile, retrievalsFixture)

	_, err := Load(dir)
	require.Error(t, err)
}

func TestThemeByID(t *testing.T) {
	cat, err := Load(fixtureDir(t))
	require.NoError(t, err)

	theme, ok := cat.ThemeByID("t2")
	require.True(t, ok)
	assert.Equal(t, "Safety", theme.Label)

	_, ok = cat.ThemeByID("missing")
	assert.False(t, ok)
}
