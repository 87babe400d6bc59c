package blackboard

// Well-known board keys. Agents declare their prerequisites and outputs in
// terms of these, and the planner derives phase ordering from them.
const (
	KeyUserInput         = "user_input"
	KeyPreprocessedText  = "preprocessed_text"
	KeyUserIntent        = "user_intent"
	KeyThemeCandidates   = "theme_candidates"
	KeyThemeScores       = "theme_scores"
	KeySelectedThemes    = "selected_themes"
	KeyThemeConfidence   = "theme_analysis_confidence"
	KeyRetrievedExcerpts = "retrieved_excerpts"
	KeyExcerptSummaries  = "excerpt_summaries"
	KeyPartialSummaries  = "partial_summaries"
	KeyCitations         = "citations"
	KeyFinalResponse     = "final_response"
	KeyQualityScore      = "quality_score"
	KeyQualityReport     = "quality_report"
	KeyConfidenceScores  = "confidence_scores"
	KeyProcessingStatus  = "processing_status"
	KeyStreamingUpdates  = "streaming_updates"
	KeyStreamingResponse = "streaming_response"
	KeyErrorMessages     = "error_messages"
	KeyFallbackTriggered = "fallback_triggered"
)

// Processing stages tracked under KeyProcessingStatus.
const (
	StageThemeAnalysis     = "theme_analysis"
	StageExcerptRetrieval  = "excerpt_retrieval"
	StageSummaryGeneration = "summary_generation"
	StageQualityAssurance  = "quality_assurance"
	StageStreamingUpdate   = "streaming_update"
)

// Stage status values.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// SourceInit marks entries written by the board itself when the schema is
// (re)initialized; SourceEngine marks entries seeded by the engine.
const (
	SourceInit   = "initialization"
	SourceEngine = "engine"
)

// operationPrerequisites maps known operation names to the keys that must
// hold data before the operation may start. Used by Board.IsReadyFor.
var operationPrerequisites = map[string][]string{
	StageThemeAnalysis:     {KeyPreprocessedText, KeyThemeCandidates},
	StageExcerptRetrieval:  {KeySelectedThemes},
	StageSummaryGeneration: {KeyRetrievedExcerpts, KeySelectedThemes},
	StageQualityAssurance:  {KeyFinalResponse},
	StageStreamingUpdate:   {KeyThemeScores},
}

// initialSchema returns the expected key set with empty defaults. Slots an
// agent is expected to produce start nil (no data yet); accumulator slots
// start as empty but present values so appends never hit a missing key.
func initialSchema() map[string]any {
	return map[string]any{
		KeyUserInput:         nil,
		KeyPreprocessedText:  nil,
		KeyUserIntent:        nil,
		KeyThemeCandidates:   nil,
		KeyThemeScores:       nil,
		KeySelectedThemes:    nil,
		KeyThemeConfidence:   nil,
		KeyRetrievedExcerpts: nil,
		KeyExcerptSummaries:  map[string]string{},
		KeyPartialSummaries:  map[string]string{},
		KeyCitations:         nil,
		KeyFinalResponse:     nil,
		KeyQualityScore:      nil,
		KeyQualityReport:     nil,
		KeyConfidenceScores:  map[string]float64{},
		KeyProcessingStatus: map[string]string{
			StageThemeAnalysis:     StatusPending,
			StageExcerptRetrieval:  StatusPending,
			StageSummaryGeneration: StatusPending,
			StageQualityAssurance:  StatusPending,
		},
		KeyStreamingUpdates:  []StreamingUpdate{},
		KeyStreamingResponse: nil,
		KeyErrorMessages:     []ErrorRecord{},
		KeyFallbackTriggered: false,
	}
}
