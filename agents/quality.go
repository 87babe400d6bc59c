package agents

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"github.com/strongafter/assistant/blackboard"
)

// Quality deductions. A response missing everything bottoms out at zero.
const (
	missingSummaryPenalty   = 0.4
	missingThemesPenalty    = 0.3
	missingCitationsPenalty = 0.2
	shortSummaryPenalty     = 0.1
	minSummaryLength        = 200
)

// QualityReport breaks a quality score down by criterion.
type QualityReport struct {
	OverallScore  float64 `json:"overall_score"`
	HasSummary    bool    `json:"has_summary"`
	HasThemes     bool    `json:"has_themes"`
	HasCitations  bool    `json:"has_citations"`
	SummaryLength int     `json:"summary_length"`
	ThemeCount    int     `json:"theme_count"`
	CitationCount int     `json:"citation_count"`
}

// QualityAssurance scores the final response against completeness criteria.
type QualityAssurance struct{}

func NewQualityAssurance() *QualityAssurance { return &QualityAssurance{} }

func (a *QualityAssurance) Name() string  { return "quality-assurance" }
func (a *QualityAssurance) Stage() string { return blackboard.StageQualityAssurance }

func (a *QualityAssurance) Prerequisites() []string {
	return []string{blackboard.KeyFinalResponse}
}

func (a *QualityAssurance) Outputs() []string {
	return []string{blackboard.KeyQualityScore, blackboard.KeyQualityReport}
}

func (a *QualityAssurance) CanContribute(b *blackboard.Board) bool {
	return b.HasData(blackboard.KeyFinalResponse) && !b.HasData(blackboard.KeyQualityScore)
}

func (a *QualityAssurance) Contribute(ctx context.Context, b *blackboard.Board) (blackboard.Contribution, error) {
	response := normalizeResponse(b.Read(blackboard.KeyFinalResponse))
	report := assess(response)

	b.Write(blackboard.KeyQualityScore, report.OverallScore, a.Name())
	b.Write(blackboard.KeyQualityReport, report, a.Name())

	slog.Info("quality-assurance: assessed", "score", report.OverallScore)
	return blackboard.Contribution{Confidence: report.OverallScore, Outputs: a.Outputs()}, nil
}

// normalizeResponse tolerates a bare string under the response key, which
// older callers wrote before the structured form existed.
func normalizeResponse(value any) blackboard.Response {
	switch v := value.(type) {
	case blackboard.Response:
		return v
	case *blackboard.Response:
		if v != nil {
			return *v
		}
	case string:
		return blackboard.Response{Summary: v}
	}
	return blackboard.Response{}
}

func assess(response blackboard.Response) QualityReport {
	score := 1.0

	// length is measured in characters, not bytes, so superscript citation
	// marks do not inflate a short summary past the threshold
	summaryLength := utf8.RuneCountInString(response.Summary)

	if response.Summary == "" {
		score -= missingSummaryPenalty
	}
	if len(response.Themes) == 0 {
		score -= missingThemesPenalty
	}
	if len(response.Citations) == 0 {
		score -= missingCitationsPenalty
	}
	if summaryLength < minSummaryLength {
		score -= shortSummaryPenalty
	}
	if score < 0 {
		score = 0
	}

	return QualityReport{
		OverallScore:  score,
		HasSummary:    response.Summary != "",
		HasThemes:     len(response.Themes) > 0,
		HasCitations:  len(response.Citations) > 0,
		SummaryLength: summaryLength,
		ThemeCount:    len(response.Themes),
		CitationCount: len(response.Citations),
	}
}
