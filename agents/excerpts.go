package agents

import (
	"context"
	"log/slog"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
)

const (
	excerptsPerTheme   = 5
	excerptsConfidence = 0.95
)

// ExcerptRetrieval attaches the pre-computed excerpt retrievals of each
// selected theme to the board, capped per theme.
type ExcerptRetrieval struct{}

func NewExcerptRetrieval() *ExcerptRetrieval { return &ExcerptRetrieval{} }

func (a *ExcerptRetrieval) Name() string  { return "excerpt-retrieval" }
func (a *ExcerptRetrieval) Stage() string { return blackboard.StageExcerptRetrieval }

func (a *ExcerptRetrieval) Prerequisites() []string {
	return []string{blackboard.KeySelectedThemes}
}

func (a *ExcerptRetrieval) Outputs() []string {
	return []string{blackboard.KeyRetrievedExcerpts}
}

func (a *ExcerptRetrieval) CanContribute(b *blackboard.Board) bool {
	return b.HasData(blackboard.KeySelectedThemes) && !b.HasData(blackboard.KeyRetrievedExcerpts)
}

func (a *ExcerptRetrieval) Contribute(ctx context.Context, b *blackboard.Board) (blackboard.Contribution, error) {
	themes, _ := b.Read(blackboard.KeySelectedThemes).([]catalog.ScoredTheme)
	slog.Info("excerpt-retrieval: retrieving", "themes", len(themes))

	excerpts := make(map[string][]catalog.Retrieval, len(themes))
	total := 0
	for _, theme := range themes {
		kept := theme.Excerpts
		if len(kept) > excerptsPerTheme {
			kept = kept[:excerptsPerTheme]
		}
		excerpts[theme.ID] = kept
		total += len(kept)
	}

	b.WriteWith(blackboard.KeyRetrievedExcerpts, excerpts, a.Name(), excerptsConfidence, nil)
	b.AddStreamingUpdate("excerpts_retrieved", map[string]any{
		"theme_count":    len(excerpts),
		"total_excerpts": total,
	}, a.Name())

	return blackboard.Contribution{Confidence: excerptsConfidence, Outputs: a.Outputs()}, nil
}
