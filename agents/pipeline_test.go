package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
)

// pipelineLLM routes prompts to canned answers the way the real model would:
// the scoring prompt gets an index-keyed score object, the summary prompt a
// cited two-paragraph summary.
func pipelineLLM() *fakeLLM {
	summary := strings.Repeat("Recovery is possible, and grounding techniques help the body feel safe again¹. ", 3) +
		"Working with these feelings gently, at your own pace, is itself part of healing²."

	return &fakeLLM{respond: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Return ONLY a valid JSON object"):
			return `{"1": 95, "2": 40, "3": 5}`, nil
		case strings.Contains(prompt, "2-paragraph therapeutic summary"):
			return summary, nil
		default:
			return "Thanks for sharing! This platform focuses on trauma recovery support.", nil
		}
	}}
}

func catalogThemes() []catalog.Theme {
	themes := sampleThemes()
	for i := range themes {
		themes[i].Excerpts = []catalog.Retrieval{
			{Excerpt: catalog.Excerpt{Text: "passage", Title: "Body Keeps Score"}, Similarity: 0.9},
		}
	}
	return themes
}

func TestFullPipelineHybrid(t *testing.T) {
	board := blackboard.NewBoard()
	roster := Roster(board, RosterConfig{LLM: pipelineLLM()})
	engine := blackboard.NewEngine(board, roster, catalogThemes(), blackboard.EngineConfig{})

	result := engine.Run(context.Background(), "I keep reliving what happened to me", blackboard.StrategyHybrid)

	require.True(t, result.Success, result.Error)
	require.Len(t, result.Themes, 2, "two themes clear the selection threshold")
	assert.Equal(t, "t1", result.Themes[0].ID)
	assert.Contains(t, result.Summary, "Recovery is possible")
	assert.Equal(t, 1.0, result.QualityScore, "long cited summary with themes scores full marks")

	assert.Equal(t, blackboard.StatusCompleted, result.ProcessingStatus[blackboard.StageThemeAnalysis])
	assert.Equal(t, blackboard.StatusCompleted, result.ProcessingStatus[blackboard.StageSummaryGeneration])
	assert.Equal(t, blackboard.StatusCompleted, result.ProcessingStatus[blackboard.StageQualityAssurance])

	// retrieval and summary both announced progress
	assert.NotEmpty(t, result.StreamingUpdates)
}

func TestFullPipelineSequential(t *testing.T) {
	board := blackboard.NewBoard()
	roster := Roster(board, RosterConfig{LLM: pipelineLLM()})
	engine := blackboard.NewEngine(board, roster, catalogThemes(), blackboard.EngineConfig{})

	result := engine.Run(context.Background(), "I keep reliving what happened to me", blackboard.StrategySequential)

	require.True(t, result.Success, result.Error)
	assert.Contains(t, result.Summary, "Recovery is possible")
	assert.Equal(t, 1.0, result.QualityScore)
}

func TestFullPipelineUnrelatedInput(t *testing.T) {
	board := blackboard.NewBoard()
	svc := &fakeLLM{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Return ONLY a valid JSON object") {
			return `{"1": 5, "2": 3, "3": 1}`, nil
		}
		return "Thanks for sharing your love of pizza! This platform focuses on trauma recovery support.", nil
	}}
	roster := Roster(board, RosterConfig{LLM: svc})
	engine := blackboard.NewEngine(board, roster, catalogThemes(), blackboard.EngineConfig{})

	result := engine.Run(context.Background(), "I love pizza", blackboard.StrategyHybrid)

	require.True(t, result.Success, result.Error)
	assert.Empty(t, result.Themes, "nothing clears the relevance floor")
	assert.Contains(t, result.Summary, "pizza")
	// acknowledgement responses score low on completeness by design of the rubric
	assert.InDelta(t, 0.4, result.QualityScore, 1e-9)
}

func TestFullPipelineRepeatedSessions(t *testing.T) {
	board := blackboard.NewBoard()
	roster := Roster(board, RosterConfig{LLM: pipelineLLM()})
	engine := blackboard.NewEngine(board, roster, catalogThemes(), blackboard.EngineConfig{})

	first := engine.Run(context.Background(), "I feel ashamed", blackboard.StrategyHybrid)
	second := engine.Run(context.Background(), "I feel ashamed", blackboard.StrategyHybrid)

	require.True(t, first.Success)
	require.True(t, second.Success, "board state from the first session must not block the second")
	assert.Equal(t, second.Summary, first.Summary)

	m := engine.Metrics()
	assert.Equal(t, 2, m.TotalExecutions)
	assert.Equal(t, 1.0, m.SuccessRate)
}

func TestFullPipelineLocalRanker(t *testing.T) {
	themes := catalogThemes()
	embedder := &fakeEmbedder{byText: map[string][]float32{
		"Grounding: Staying present in the body":       {1, 0, 0},
		"Safety: Rebuilding a sense of safety":         {0, 1, 0},
		"Shame: Working through shame and self-blame":  {0, 0, 1},
		"grounding exercises keep me present":          {1, 0, 0},
	}}
	index, err := BuildThemeIndex(context.Background(), embedder, themes)
	require.NoError(t, err)

	board := blackboard.NewBoard()
	roster := Roster(board, RosterConfig{
		LLM:        pipelineLLM(),
		Embedder:   embedder,
		ThemeIndex: index,
		Books:      nil,
	})
	engine := blackboard.NewEngine(board, roster, themes, blackboard.EngineConfig{})

	result := engine.Run(context.Background(), "grounding exercises keep me present", blackboard.StrategyHybrid)

	require.True(t, result.Success, result.Error)
	require.NotEmpty(t, result.Themes)
	assert.Equal(t, "t1", result.Themes[0].ID, "embedding match wins without any LLM scoring call")
}
