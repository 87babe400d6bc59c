package agents

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/strongafter/assistant/blackboard"
	"github.com/strongafter/assistant/catalog"
	"github.com/strongafter/assistant/llm"
)

const (
	summaryExcerptLimit  = 10
	summaryExcerptChars  = 500
	summaryConfidence    = 0.9
	noThemeConfidence    = 1.0
	acknowledgementChars = 50
)

// SummaryGeneration synthesizes the final therapeutic response from the
// selected themes and their excerpts. When no themes were relevant it
// produces a short acknowledgement instead, falling back to a canned line
// if even that call fails.
type SummaryGeneration struct {
	llm   llm.Service
	books map[string]catalog.BookMeta
}

func NewSummaryGeneration(svc llm.Service, books map[string]catalog.BookMeta) *SummaryGeneration {
	return &SummaryGeneration{llm: svc, books: books}
}

func (a *SummaryGeneration) Name() string  { return "summary-generation" }
func (a *SummaryGeneration) Stage() string { return blackboard.StageSummaryGeneration }

func (a *SummaryGeneration) Prerequisites() []string {
	return []string{blackboard.KeySelectedThemes}
}

func (a *SummaryGeneration) Outputs() []string {
	return []string{blackboard.KeyFinalResponse, blackboard.KeyCitations}
}

func (a *SummaryGeneration) CanContribute(b *blackboard.Board) bool {
	return b.HasData(blackboard.KeySelectedThemes) && !b.HasData(blackboard.KeyFinalResponse)
}

func (a *SummaryGeneration) Contribute(ctx context.Context, b *blackboard.Board) (blackboard.Contribution, error) {
	start := time.Now()

	themes, _ := b.Read(blackboard.KeySelectedThemes).([]catalog.ScoredTheme)
	userText, _ := b.Read(blackboard.KeyUserInput).(string)

	if len(themes) == 0 {
		return a.acknowledge(ctx, b, userText, start)
	}

	excerpts := a.collectExcerpts(b, themes)
	slog.Info("summary-generation: generating", "themes", len(themes), "excerpts", len(excerpts))

	summary, err := a.llm.Complete(ctx, a.summaryPrompt(userText, themes, excerpts))
	if err != nil {
		return blackboard.Contribution{}, errors.Wrap(err, "generate summary")
	}
	summary = strings.TrimSpace(summary)

	citations := extractCitations(summary)
	response := blackboard.Response{
		Themes:    themes,
		Summary:   summary,
		Citations: citations,
		Elapsed:   time.Since(start),
	}

	b.WriteWith(blackboard.KeyFinalResponse, response, a.Name(), summaryConfidence, nil)
	b.Write(blackboard.KeyCitations, citations, a.Name())
	b.AddStreamingUpdate("summary_complete", map[string]any{
		"summary_length": len(summary),
		"citation_count": len(citations),
	}, a.Name())

	return blackboard.Contribution{Confidence: summaryConfidence, Outputs: a.Outputs()}, nil
}

// acknowledge handles input with no relevant themes: a brief, friendly
// response that steers the user toward the platform's scope.
func (a *SummaryGeneration) acknowledge(ctx context.Context, b *blackboard.Board, userText string, start time.Time) (blackboard.Contribution, error) {
	slog.Info("summary-generation: no relevant themes, acknowledging input")

	prompt := fmt.Sprintf(`The user has shared: %q

This input doesn't relate to trauma recovery or mental health topics.
Please provide a brief, friendly response that:
1. Acknowledges what they shared
2. Gently indicates this platform specializes in trauma recovery support
3. Offers to help if they have trauma-related concerns

Keep the response natural and conversational, not formulaic.`, userText)

	text, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		slog.Warn("summary-generation: acknowledgement call failed, using fallback", "error", err)
		text = fmt.Sprintf("Thank you for sharing about %s. While this platform specializes in trauma recovery and mental health support, I'm here if you need help with those topics.",
			truncate(userText, acknowledgementChars))
	}

	response := blackboard.Response{
		Themes:    []catalog.ScoredTheme{},
		Summary:   strings.TrimSpace(text),
		Citations: []blackboard.Citation{},
		Elapsed:   time.Since(start),
	}

	b.WriteWith(blackboard.KeyFinalResponse, response, a.Name(), noThemeConfidence, nil)
	b.Write(blackboard.KeyCitations, []blackboard.Citation{}, a.Name())

	return blackboard.Contribution{Confidence: noThemeConfidence, Outputs: a.Outputs()}, nil
}

// collectExcerpts flattens the retrieval stage's output in selected-theme
// order, falling back to the themes' own excerpt lists when the retrieval
// stage never ran.
func (a *SummaryGeneration) collectExcerpts(b *blackboard.Board, themes []catalog.ScoredTheme) []catalog.Retrieval {
	var excerpts []catalog.Retrieval

	retrieved, _ := b.Read(blackboard.KeyRetrievedExcerpts).(map[string][]catalog.Retrieval)
	if len(retrieved) > 0 {
		for _, theme := range themes {
			excerpts = append(excerpts, retrieved[theme.ID]...)
		}
		return excerpts
	}

	for _, theme := range themes {
		excerpts = append(excerpts, theme.Excerpts...)
	}
	return excerpts
}

func (a *SummaryGeneration) summaryPrompt(userText string, themes []catalog.ScoredTheme, excerpts []catalog.Retrieval) string {
	var themesText strings.Builder
	for _, theme := range themes {
		fmt.Fprintf(&themesText, "- %s: %s\n", theme.Label, theme.Description)
	}

	if len(excerpts) > summaryExcerptLimit {
		excerpts = excerpts[:summaryExcerptLimit]
	}

	var excerptsText strings.Builder
	for i, item := range excerpts {
		title := item.Excerpt.Title
		if title == "" {
			title = "Unknown"
		}
		fmt.Fprintf(&excerptsText, "EXCERPT %d (%s):\n%s...\n\n", i+1, title, truncate(item.Excerpt.Text, summaryExcerptChars))
	}

	return fmt.Sprintf(`Create a 2-paragraph therapeutic summary for trauma recovery using the provided themes and excerpts.

THEMES:
%s
EXCERPTS:
%s
INSTRUCTIONS:
- Write exactly 2 paragraphs about trauma recovery
- Reference specific excerpts throughout your summary
- Use citation format ¹ ² ³ etc. when referencing excerpts
- Include at least 3-5 citations from the excerpts above
- Make the summary supportive and therapeutic in tone
- Focus on healing, recovery, and practical insights

IMPORTANT: You MUST include citations in the format ¹ when referencing excerpt content.

After your summary, add a References section using this format:
## References
%s`, themesText.String(), excerptsText.String(), a.referencesTemplate(excerpts))
}

// referencesTemplate renders real book metadata for the cited excerpts when
// it is available, so the model reproduces accurate references instead of
// inventing them.
func (a *SummaryGeneration) referencesTemplate(excerpts []catalog.Retrieval) string {
	var refs strings.Builder
	seen := map[string]bool{}

	n := 0
	for _, item := range excerpts {
		meta, ok := a.books[item.Excerpt.Title]
		if !ok || seen[item.Excerpt.Title] {
			continue
		}
		seen[item.Excerpt.Title] = true
		n++
		fmt.Fprintf(&refs, "%s %s (%s). *%s*. %s. [Get this book](%s)\n",
			superscript(n), meta.Author, meta.Year, meta.Title, meta.Publisher, meta.PurchaseURL)
	}

	if refs.Len() == 0 {
		return "¹ Author, A. (Year). *Title*. Publisher. [Get this book](http://strongafter.org)\n" +
			"² Author, B. (Year). *Title*. Publisher. [Get this book](http://strongafter.org)"
	}
	return strings.TrimRight(refs.String(), "\n")
}

var (
	legacyCitationPattern      = regexp.MustCompile(`⁽(\d+)⁾`)
	superscriptCitationPattern = regexp.MustCompile(`[¹²³⁴⁵⁶⁷⁸⁹⁰]+`)

	superscriptDigits = map[rune]rune{
		'⁰': '0', '¹': '1', '²': '2', '³': '3', '⁴': '4',
		'⁵': '5', '⁶': '6', '⁷': '7', '⁸': '8', '⁹': '9',
	}
)

// extractCitations finds both superscript runs (¹²) and the legacy ⁽n⁾
// format in a generated summary.
func extractCitations(summary string) []blackboard.Citation {
	citations := []blackboard.Citation{}

	for _, match := range legacyCitationPattern.FindAllStringSubmatch(summary, -1) {
		if n, err := strconv.Atoi(match[1]); err == nil {
			citations = append(citations, blackboard.Citation{Number: n, Type: "excerpt"})
		}
	}

	for _, match := range superscriptCitationPattern.FindAllString(summary, -1) {
		var digits strings.Builder
		for _, r := range match {
			digits.WriteRune(superscriptDigits[r])
		}
		if n, err := strconv.Atoi(digits.String()); err == nil {
			citations = append(citations, blackboard.Citation{Number: n, Type: "excerpt"})
		}
	}

	return citations
}

// superscript renders n with superscript digits for reference numbering.
func superscript(n int) string {
	plain := strconv.Itoa(n)
	var out strings.Builder
	for _, r := range plain {
		for sup, digit := range superscriptDigits {
			if digit == r {
				out.WriteRune(sup)
				break
			}
		}
	}
	return out.String()
}
