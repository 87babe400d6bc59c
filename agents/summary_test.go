package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
)

func scoredThemes() []catalog.ScoredTheme {
	themes := sampleThemes()
	themes[0].Excerpts = []catalog.Retrieval{
		{Excerpt: catalog.Excerpt{Text: "Grounding exercise text", Title: "Body Keeps Score"}, Similarity: 0.9},
		{Excerpt: catalog.Excerpt{Text: "Another grounding passage", Title: "Body Keeps Score"}, Similarity: 0.8},
	}
	return []catalog.ScoredTheme{
		{Theme: themes[0], RelevanceScore: 90},
		{Theme: themes[1], RelevanceScore: 40},
	}
}

func TestSummaryGenerationContribute(t *testing.T) {
	b := seededBoard("I feel unsafe", sampleThemes())
	b.Write(blackboard.KeySelectedThemes, scoredThemes(), "test")

	svc := &fakeLLM{response: "Healing begins with safety¹. Grounding helps² too."}
	agent := NewSummaryGeneration(svc, nil)

	require.True(t, agent.CanContribute(b))

	contribution, err := agent.Contribute(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, summaryConfidence, contribution.Confidence)

	response, ok := b.Read(blackboard.KeyFinalResponse).(blackboard.Response)
	require.True(t, ok)
	assert.Equal(t, "Healing begins with safety¹. Grounding helps² too.", response.Summary)
	require.Len(t, response.Citations, 2)
	assert.Equal(t, 1, response.Citations[0].Number)
	assert.Equal(t, 2, response.Citations[1].Number)

	updates := b.StreamingUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, "summary_complete", updates[0].Type)

	// a written response blocks a rerun
	assert.False(t, agent.CanContribute(b))
}

func TestSummaryGenerationNoThemesAcknowledges(t *testing.T) {
	b := seededBoard("I love pizza", sampleThemes())
	b.Write(blackboard.KeySelectedThemes, []catalog.ScoredTheme{}, "test")

	svc := &fakeLLM{response: "Thanks for sharing! This platform focuses on trauma recovery."}
	agent := NewSummaryGeneration(svc, nil)

	contribution, err := agent.Contribute(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, noThemeConfidence, contribution.Confidence)

	response, _ := b.Read(blackboard.KeyFinalResponse).(blackboard.Response)
	assert.Contains(t, response.Summary, "Thanks for sharing")
	assert.Empty(t, response.Themes)
	assert.Empty(t, response.Citations)
}

func TestSummaryGenerationAcknowledgementFallback(t *testing.T) {
	b := seededBoard("I love pizza", sampleThemes())
	b.Write(blackboard.KeySelectedThemes, []catalog.ScoredTheme{}, "test")

	agent := NewSummaryGeneration(&fakeLLM{err: errors.New("unavailable")}, nil)

	contribution, err := agent.Contribute(context.Background(), b)
	require.NoError(t, err, "acknowledgement degrades instead of failing")
	assert.Equal(t, noThemeConfidence, contribution.Confidence)

	response, _ := b.Read(blackboard.KeyFinalResponse).(blackboard.Response)
	assert.Contains(t, response.Summary, "Thank you for sharing")
	assert.Contains(t, response.Summary, "trauma recovery")
}

func TestSummaryGenerationPropagatesLLMError(t *testing.T) {
	b := seededBoard("I feel unsafe", sampleThemes())
	b.Write(blackboard.KeySelectedThemes, scoredThemes(), "test")

	agent := NewSummaryGeneration(&fakeLLM{err: errors.New("timeout")}, nil)

	_, err := agent.Contribute(context.Background(), b)
	require.Error(t, err)
	assert.False(t, b.HasData(blackboard.KeyFinalResponse))
}

func TestCollectExcerptsPrefersRetrieved(t *testing.T) {
	themes := scoredThemes()
	agent := NewSummaryGeneration(nil, nil)

	b := blackboard.NewBoard()
	b.Write(blackboard.KeyRetrievedExcerpts, map[string][]catalog.Retrieval{
		"t2": {{Excerpt: catalog.Excerpt{Text: "safety excerpt"}}},
		"t1": {{Excerpt: catalog.Excerpt{Text: "grounding excerpt"}}},
	}, "test")

	excerpts := agent.collectExcerpts(b, themes)

	// selected-theme order, not map order
	require.Len(t, excerpts, 2)
	assert.Equal(t, "grounding excerpt", excerpts[0].Excerpt.Text)
	assert.Equal(t, "safety excerpt", excerpts[1].Excerpt.Text)
}

func TestCollectExcerptsFallsBackToThemeExcerpts(t *testing.T) {
	themes := scoredThemes()
	agent := NewSummaryGeneration(nil, nil)
	b := blackboard.NewBoard()

	excerpts := agent.collectExcerpts(b, themes)

	require.Len(t, excerpts, 2)
	assert.Equal(t, "Grounding exercise text", excerpts[0].Excerpt.Text)
}

func TestSummaryPromptCapsExcerpts(t *testing.T) {
	agent := NewSummaryGeneration(nil, nil)

	var excerpts []catalog.Retrieval
	for i := 0; i < summaryExcerptLimit+5; i++ {
		excerpts = append(excerpts, catalog.Retrieval{
			Excerpt: catalog.Excerpt{Text: "text", Title: "Book"},
		})
	}

	prompt := agent.summaryPrompt("input", scoredThemes(), excerpts)

	assert.Contains(t, prompt, "EXCERPT 10 (")
	assert.NotContains(t, prompt, "EXCERPT 11 (")
}

func TestReferencesTemplateUsesBookMetadata(t *testing.T) {
	books := map[string]catalog.BookMeta{
		"Body Keeps Score": {
			Author:      "van der Kolk, B.",
			Year:        "2014",
			Title:       "The Body Keeps the Score",
			Publisher:   "Viking",
			PurchaseURL: "https://example.org/book",
		},
	}
	agent := NewSummaryGeneration(nil, books)

	refs := agent.referencesTemplate([]catalog.Retrieval{
		{Excerpt: catalog.Excerpt{Title: "Body Keeps Score"}},
		{Excerpt: catalog.Excerpt{Title: "Body Keeps Score"}},
	})

	assert.True(t, strings.HasPrefix(refs, "¹ van der Kolk, B. (2014)."), refs)
	assert.Equal(t, 1, strings.Count(refs, "van der Kolk"), "each book referenced once")
}

func TestReferencesTemplatePlaceholderWithoutMetadata(t *testing.T) {
	agent := NewSummaryGeneration(nil, nil)

	refs := agent.referencesTemplate([]catalog.Retrieval{
		{Excerpt: catalog.Excerpt{Title: "Unknown Book"}},
	})

	assert.Contains(t, refs, "Author, A. (Year)")
}

func TestExtractCitations(t *testing.T) {
	citations := extractCitations("Safety first¹ and grounding² plus legacy⁽3⁾ form.")

	// legacy matches come first, then superscript runs in order
	require.Len(t, citations, 3)
	assert.Equal(t, 3, citations[0].Number)
	assert.Equal(t, 1, citations[1].Number)
	assert.Equal(t, 2, citations[2].Number)
	assert.Equal(t, "excerpt", citations[0].Type)
}

func TestExtractCitationsMultiDigitRun(t *testing.T) {
	citations := extractCitations("see note¹²")

	// adjacent superscripts read as one multi-digit citation
	require.Len(t, citations, 1)
	assert.Equal(t, 12, citations[0].Number)
}

func TestExtractCitationsNone(t *testing.T) {
	citations := extractCitations("no citations here")
	assert.NotNil(t, citations)
	assert.Empty(t, citations)
}

func TestSuperscript(t *testing.T) {
	assert.Equal(t, "¹", superscript(1))
	assert.Equal(t, "¹²", superscript(12))
	assert.Equal(t, "²⁰", superscript(20))
}
