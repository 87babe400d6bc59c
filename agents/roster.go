package agents

import (
	"time"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
	"github.com/strongafter/assistant/embedding"
	"github.com/strongafter/assistant/llm"
)

// RosterConfig selects the services the knowledge sources run against.
// When Embedder and ThemeIndex are both set, the local hybrid ranker
// replaces the LLM theme scorer.
type RosterConfig struct {
	LLM        llm.Service
	Embedder   embedding.Service
	ThemeIndex *embedding.Index
	Books      map[string]catalog.BookMeta
}

// Roster builds the standard agent set against one board. Priorities order
// sequential execution (higher first); estimates feed plan cost projections.
func Roster(board *blackboard.Board, cfg RosterConfig) []*blackboard.Agent {
	var themeScorer blackboard.Contributor = NewThemeAnalysis(cfg.LLM)
	if cfg.Embedder != nil && cfg.ThemeIndex != nil {
		themeScorer = NewLocalThemeRanker(cfg.Embedder, cfg.ThemeIndex)
	}

	return []*blackboard.Agent{
		blackboard.NewAgent(themeScorer, board, 10, blackboard.Capabilities{
			Parallel:            true,
			EstimatedDuration:   3 * time.Second,
			ConfidenceThreshold: 0.9,
		}),
		blackboard.NewAgent(NewExcerptRetrieval(), board, 7, blackboard.Capabilities{
			Parallel:            true,
			EstimatedDuration:   500 * time.Millisecond,
			ConfidenceThreshold: 0.9,
			FallbackAvailable:   true,
		}),
		blackboard.NewAgent(NewSummaryGeneration(cfg.LLM, cfg.Books), board, 6, blackboard.Capabilities{
			Parallel:            false,
			EstimatedDuration:   5 * time.Second,
			ConfidenceThreshold: 0.8,
			FallbackAvailable:   true,
		}),
		blackboard.NewAgent(NewQualityAssurance(), board, 4, blackboard.Capabilities{
			Parallel:            true,
			EstimatedDuration:   200 * time.Millisecond,
			ConfidenceThreshold: 0.7,
		}),
		blackboard.NewAgent(NewStreaming(), board, 3, blackboard.Capabilities{
			Parallel:            true,
			EstimatedDuration:   100 * time.Millisecond,
			ConfidenceThreshold: 1.0,
		}),
	}
}
