// Package agents implements the knowledge sources that cooperate through
// the board: theme scoring, excerpt retrieval, summary generation, quality
// assurance, and progress streaming. Each agent declares its prerequisite
// and output keys; the planner derives execution order from those alone.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
	"github.com/strongafter/assistant/llm"
)

const (
	// Theme selection thresholds. Themes scoring at or above the selection
	// threshold are taken (up to the cap); when none qualify, the single top
	// theme is taken only if it clears the floor.
	maxSelectedThemes    = 3
	selectionThreshold   = 20.0
	singleThemeFloor     = 10.0
	parseFallbackScore   = 10.0
	themeConfidence      = 0.9
	descriptionPromptLen = 150
)

// ThemeAnalysis scores every candidate theme against the user's input with
// one LLM call and selects the most relevant ones.
type ThemeAnalysis struct {
	llm llm.Service
}

func NewThemeAnalysis(svc llm.Service) *ThemeAnalysis {
	return &ThemeAnalysis{llm: svc}
}

func (a *ThemeAnalysis) Name() string  { return "theme-analysis" }
func (a *ThemeAnalysis) Stage() string { return blackboard.StageThemeAnalysis }

func (a *ThemeAnalysis) Prerequisites() []string {
	return []string{blackboard.KeyPreprocessedText, blackboard.KeyThemeCandidates}
}

func (a *ThemeAnalysis) Outputs() []string {
	return []string{blackboard.KeyThemeScores, blackboard.KeySelectedThemes, blackboard.KeyThemeConfidence}
}

// CanContribute requires input and candidates, and skips when scores are
// already present so reruns do not repeat the LLM call.
func (a *ThemeAnalysis) CanContribute(b *blackboard.Board) bool {
	if !b.HasData(blackboard.KeyPreprocessedText) || !b.HasData(blackboard.KeyThemeCandidates) {
		return false
	}
	scores, _ := b.Read(blackboard.KeyThemeScores).(map[string]float64)
	return len(scores) == 0
}

func (a *ThemeAnalysis) Contribute(ctx context.Context, b *blackboard.Board) (blackboard.Contribution, error) {
	text, _ := b.Read(blackboard.KeyPreprocessedText).(string)
	candidates, _ := b.Read(blackboard.KeyThemeCandidates).([]catalog.Theme)

	slog.Info("theme-analysis: scoring themes", "candidates", len(candidates))

	raw, err := a.llm.Complete(ctx, scoringPrompt(text, candidates))
	if err != nil {
		return blackboard.Contribution{}, errors.Wrap(err, "theme scoring")
	}

	scores := parseScores(raw, candidates)
	selected := selectThemes(scores, candidates)

	b.WriteWith(blackboard.KeyThemeScores, scores, a.Name(), themeConfidence, nil)
	b.WriteWith(blackboard.KeySelectedThemes, selected, a.Name(), themeConfidence, nil)
	b.Write(blackboard.KeyThemeConfidence, themeConfidence, a.Name())

	slog.Info("theme-analysis: selected themes", "count", len(selected))
	return blackboard.Contribution{Confidence: themeConfidence, Outputs: a.Outputs()}, nil
}

func scoringPrompt(text string, themes []catalog.Theme) string {
	var list strings.Builder
	for i, theme := range themes {
		fmt.Fprintf(&list, "%d. %s: %s...\n", i+1, theme.Label, truncate(theme.Description, descriptionPromptLen))
	}

	return fmt.Sprintf(`You are analyzing the relevance of trauma recovery themes to a user's input. Be extremely strict about relevance.

User input: %q

Themes to rate (0-100 scale):
%s
STRICT SCORING GUIDELINES:
- 90-100: User explicitly mentions trauma, abuse, recovery, therapy, or directly asks for help with trauma-related issues
- 70-89: User describes clear trauma symptoms (anxiety, depression, PTSD, addiction, relationship problems) in context
- 50-69: User mentions emotional struggles or mental health challenges that could relate to trauma
- 30-49: Very weak connection requiring significant inference
- 0-29: NO CONNECTION - user discusses unrelated topics

EXAMPLES OF LOW SCORES (0-29):
- Food preferences ("I love pizza", "favorite ice cream")
- Hobbies ("playing video games", "reading books", "hiking")
- Sports, weather, entertainment, shopping, travel
- General positive statements without distress context
- Casual daily activities

BE EXTREMELY STRICT: Only give scores above 30 if there's a clear emotional distress, mental health concern, or explicit trauma reference.

Return ONLY a valid JSON object with ALL theme scores:
{"1": score, "2": score, "3": score, ...}`, text, list.String())
}

// parseScores maps the model's index-keyed JSON back onto theme IDs,
// clamping to [0, 100]. A response we cannot parse degrades every theme to
// a low default so unrelated input is never over-matched.
func parseScores(raw string, themes []catalog.Theme) map[string]float64 {
	scores := make(map[string]float64, len(themes))

	parsed, err := parseIndexedScores(raw)
	if err != nil {
		slog.Warn("theme-analysis: unparseable scoring response, using low defaults", "error", err)
		for _, theme := range themes {
			scores[theme.ID] = parseFallbackScore
		}
		return scores
	}

	for i, theme := range themes {
		score, ok := parsed[strconv.Itoa(i+1)]
		if !ok {
			scores[theme.ID] = 0
			continue
		}
		scores[theme.ID] = clamp(score, 0, 100)
	}
	return scores
}

func parseIndexedScores(raw string) (map[string]float64, error) {
	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}
	var parsed map[string]float64
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return nil, errors.Wrap(err, "parse score object")
	}
	return parsed, nil
}

// extractJSONObject pulls the first balanced-brace object out of model
// output that may wrap it in prose or code fences.
func extractJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	if start == -1 {
		return "", errors.New("no JSON object in response")
	}

	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}
	return "", errors.New("unbalanced JSON object in response")
}

// selectThemes keeps the highest-scoring themes above the selection
// threshold. When nothing qualifies, the top theme is kept alone if it at
// least clears the floor, otherwise nothing is selected.
func selectThemes(scores map[string]float64, themes []catalog.Theme) []catalog.ScoredTheme {
	sorted := append([]catalog.Theme(nil), themes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scores[sorted[i].ID] > scores[sorted[j].ID]
	})

	selected := []catalog.ScoredTheme{}
	for _, theme := range sorted {
		score := scores[theme.ID]
		if score >= selectionThreshold && len(selected) < maxSelectedThemes {
			selected = append(selected, catalog.ScoredTheme{Theme: theme, RelevanceScore: score})
		}
	}

	if len(selected) == 0 && len(sorted) > 0 {
		if top := scores[sorted[0].ID]; top > singleThemeFloor {
			selected = append(selected, catalog.ScoredTheme{Theme: sorted[0], RelevanceScore: top})
		}
	}

	return selected
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
