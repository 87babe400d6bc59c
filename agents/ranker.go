package agents

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
	"github.com/strongafter/assistant/embedding"
)

// Hybrid score weighting: dense cosine similarity carries most of the
// signal, keyword overlap keeps obviously on-topic input from being missed
// when embeddings disagree.
const (
	denseWeight      = 0.6
	sparseWeight     = 0.4
	labelMatchBoost  = 1.5
	entropySmoothing = 1e-10
)

// LocalThemeRanker is a drop-in alternative to ThemeAnalysis that scores
// themes without an LLM call: a pre-built embedding index supplies dense
// similarity and token overlap supplies the sparse component. Cheaper and
// deterministic, at some cost in semantic nuance.
type LocalThemeRanker struct {
	embedder embedding.Service
	index    *embedding.Index
}

func NewLocalThemeRanker(svc embedding.Service, index *embedding.Index) *LocalThemeRanker {
	return &LocalThemeRanker{embedder: svc, index: index}
}

// BuildThemeIndex embeds every theme's label and description, keyed by
// theme ID, for the ranker's dense component.
func BuildThemeIndex(ctx context.Context, svc embedding.Service, themes []catalog.Theme) (*embedding.Index, error) {
	ids := make([]string, len(themes))
	texts := make([]string, len(themes))
	for i, theme := range themes {
		ids[i] = theme.ID
		texts[i] = theme.Label + ": " + theme.Description
	}
	return embedding.BuildIndex(ctx, svc, ids, texts)
}

func (a *LocalThemeRanker) Name() string  { return "local-theme-ranker" }
func (a *LocalThemeRanker) Stage() string { return blackboard.StageThemeAnalysis }

func (a *LocalThemeRanker) Prerequisites() []string {
	return []string{blackboard.KeyPreprocessedText, blackboard.KeyThemeCandidates}
}

func (a *LocalThemeRanker) Outputs() []string {
	return []string{blackboard.KeyThemeScores, blackboard.KeySelectedThemes, blackboard.KeyThemeConfidence}
}

func (a *LocalThemeRanker) CanContribute(b *blackboard.Board) bool {
	if !b.HasData(blackboard.KeyPreprocessedText) || !b.HasData(blackboard.KeyThemeCandidates) {
		return false
	}
	scores, _ := b.Read(blackboard.KeyThemeScores).(map[string]float64)
	return len(scores) == 0
}

func (a *LocalThemeRanker) Contribute(ctx context.Context, b *blackboard.Board) (blackboard.Contribution, error) {
	text, _ := b.Read(blackboard.KeyPreprocessedText).(string)
	candidates, _ := b.Read(blackboard.KeyThemeCandidates).([]catalog.Theme)

	vectors, err := a.embedder.Embed(ctx, []string{text})
	if err != nil {
		return blackboard.Contribution{}, errors.Wrap(err, "embed query")
	}
	if len(vectors) == 0 {
		return blackboard.Contribution{}, errors.New("no query embedding returned")
	}

	cosines := a.index.Similarities(vectors[0])

	scores := make(map[string]float64, len(candidates))
	hybrids := make([]float64, 0, len(candidates))
	for _, theme := range candidates {
		hybrid := denseWeight*cosines[theme.ID] + sparseWeight*sparseScore(text, theme)
		hybrids = append(hybrids, hybrid)
		scores[theme.ID] = clamp(hybrid*100, 0, 100)
	}

	selected := selectThemes(scores, candidates)
	confidence := rankingConfidence(hybrids, topCosine(cosines, candidates, scores))

	b.WriteWith(blackboard.KeyThemeScores, scores, a.Name(), confidence, nil)
	b.WriteWith(blackboard.KeySelectedThemes, selected, a.Name(), confidence, nil)
	b.Write(blackboard.KeyThemeConfidence, confidence, a.Name())

	slog.Info("local-theme-ranker: ranked", "candidates", len(candidates), "selected", len(selected), "confidence", confidence)
	return blackboard.Contribution{Confidence: confidence, Outputs: a.Outputs()}, nil
}

// sparseScore is token Jaccard between the input and the theme's label plus
// description, boosted when the input names the label outright.
func sparseScore(text string, theme catalog.Theme) float64 {
	textWords := wordSet(text)
	themeWords := wordSet(theme.Label + " " + theme.Description)

	union := len(themeWords)
	intersection := 0
	for word := range textWords {
		if themeWords[word] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}

	jaccard := float64(intersection) / float64(union)
	if strings.Contains(strings.ToLower(text), strings.ToLower(theme.Label)) {
		jaccard *= labelMatchBoost
	}
	return math.Min(jaccard, 1.0)
}

func wordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		set[word] = true
	}
	return set
}

// rankingConfidence scales the top dense similarity by how peaked the score
// distribution is: an even spread means the ranker cannot tell the themes
// apart and confidence drops toward zero.
func rankingConfidence(scores []float64, topCosine float64) float64 {
	if len(scores) < 2 {
		return clamp(topCosine, 0, 1)
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}

	entropy := 0.0
	if sum > 0 {
		for _, s := range scores {
			p := s / sum
			entropy -= p * math.Log(p+entropySmoothing)
		}
	}

	confidence := topCosine * (1.0 - entropy/math.Log(float64(len(scores))))
	return clamp(confidence, 0, 1)
}

// topCosine finds the dense similarity of the hybrid-best theme.
func topCosine(cosines map[string]float64, themes []catalog.Theme, scores map[string]float64) float64 {
	if len(themes) == 0 {
		return 0
	}
	sorted := append([]catalog.Theme(nil), themes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return scores[sorted[i].ID] > scores[sorted[j].ID]
	})
	return cosines[sorted[0].ID]
}
