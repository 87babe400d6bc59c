// Package blackboard implements the shared-state coordination core: a
// key-addressed board with write provenance and confidence, the agent
// lifecycle contract, the execution plan builder, and the session engine
// that drives agents against the board.
//
// One Board instance serves one processing session at a time. Every write
// carries the writer's identity and a self-reported confidence; readers see
// only the current value for a key (writes replace, history is not kept).
package blackboard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// completionThreshold is the minimum quality score for a session to count
// as complete.
const completionThreshold = 0.7

// Entry is one slot on the board.
type Entry struct {
	Key        string         `json:"key"`
	Value      any            `json:"value"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Subscriber is invoked synchronously on every write to a subscribed key.
// Subscribers must be fast and must not block; they may write back to the
// board (dispatch happens after the board lock is released).
type Subscriber func(Entry)

// StreamingUpdate is one progress event accumulated under KeyStreamingUpdates.
type StreamingUpdate struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Error severities recorded on ErrorRecord.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ErrorRecord is one failure note accumulated under KeyErrorMessages.
type ErrorRecord struct {
	Message   string    `json:"message"`
	Source    string    `json:"source"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// BoardMetrics is a read-only snapshot of the board's counters.
type BoardMetrics struct {
	TotalWrites         int                        `json:"total_writes"`
	TotalReads          int                        `json:"total_reads"`
	AgentContributions  map[string]int             `json:"agent_contributions"`
	StageTimings        map[string][]time.Duration `json:"processing_stages"`
	TotalProcessingTime time.Duration              `json:"total_processing_time"`
	Size                int                        `json:"blackboard_size"`
	Complete            bool                       `json:"completion_status"`
}

// StateSummary is a coarse observability snapshot of the board.
type StateSummary struct {
	HasInput         bool              `json:"has_input"`
	HasThemes        bool              `json:"has_themes"`
	HasExcerpts      bool              `json:"has_excerpts"`
	HasResponse      bool              `json:"has_response"`
	ProcessingStatus map[string]string `json:"processing_status"`
	ErrorCount       int               `json:"error_count"`
	Metrics          BoardMetrics      `json:"metrics"`
}

// Board is the shared state store for one processing session. All methods
// are safe for concurrent use; a single mutex serializes entry and counter
// mutation, and subscriber callbacks run outside the critical section so
// they may call back into the board.
type Board struct {
	mu            sync.Mutex
	entries       map[string]Entry
	subscribers   map[string][]Subscriber
	start         time.Time
	writes        int
	reads         int
	contributions map[string]int
	stageTimings  map[string][]time.Duration
}

// NewBoard creates a board pre-populated with the expected key schema.
func NewBoard() *Board {
	b := &Board{
		subscribers:   map[string][]Subscriber{},
		contributions: map[string]int{},
		stageTimings:  map[string][]time.Duration{},
	}
	b.initialize()
	return b
}

func (b *Board) initialize() {
	b.entries = make(map[string]Entry)
	now := time.Now()
	for key, value := range initialSchema() {
		b.entries[key] = Entry{
			Key:        key,
			Value:      value,
			Source:     SourceInit,
			Timestamp:  now,
			Confidence: 1.0,
		}
	}
}

// Write replaces the entry for key and notifies subscribers, recording a
// confidence of 1.0 and no metadata. Use WriteWith to attach either.
func (b *Board) Write(key string, value any, source string) {
	b.WriteWith(key, value, source, 1.0, nil)
}

// WriteWith replaces the entry for key with explicit confidence and metadata.
func (b *Board) WriteWith(key string, value any, source string, confidence float64, metadata map[string]any) {
	entry := Entry{
		Key:        key,
		Value:      value,
		Source:     source,
		Timestamp:  time.Now(),
		Confidence: confidence,
		Metadata:   metadata,
	}

	b.mu.Lock()
	b.entries[key] = entry
	b.writes++
	b.contributions[source]++
	subs := append([]Subscriber(nil), b.subscribers[key]...)
	b.mu.Unlock()

	slog.Debug("board: write", "key", key, "source", source, "confidence", confidence)

	for _, sub := range subs {
		b.notify(key, sub, entry)
	}
}

// update performs a read-modify-write of one key inside a single critical
// section so concurrent appends to an accumulator slot cannot lose records.
// fn runs under the board lock and returns the replacement value; subscriber
// dispatch happens after the lock is released, same as WriteWith.
func (b *Board) update(key, source string, fn func(old any) any) {
	entry := Entry{
		Key:        key,
		Source:     source,
		Timestamp:  time.Now(),
		Confidence: 1.0,
	}

	b.mu.Lock()
	entry.Value = fn(b.entries[key].Value)
	b.entries[key] = entry
	b.writes++
	b.contributions[source]++
	subs := append([]Subscriber(nil), b.subscribers[key]...)
	b.mu.Unlock()

	slog.Debug("board: update", "key", key, "source", source)

	for _, sub := range subs {
		b.notify(key, sub, entry)
	}
}

// notify isolates a single subscriber so a panicking callback cannot abort
// the write or starve its peers.
func (b *Board) notify(key string, sub Subscriber, entry Entry) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("board: subscriber panic", "key", key, "panic", r)
		}
	}()
	sub(entry)
}

// Read returns the current value for key, or nil when absent.
func (b *Board) Read(key string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	return b.entries[key].Value
}

// ReadEntry returns the full entry for key, or false when the key is unknown.
func (b *Board) ReadEntry(key string) (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[key]
	return entry, ok
}

// HasData reports whether key holds a non-nil value.
func (b *Board) HasData(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[key]
	return ok && entry.Value != nil
}

// IsReadyFor reports whether every prerequisite key of a known operation
// holds data. Unknown operations have no prerequisites and are ready.
func (b *Board) IsReadyFor(operation string) bool {
	for _, key := range operationPrerequisites[operation] {
		if !b.HasData(key) {
			return false
		}
	}
	return true
}

// Subscribe registers a callback for every future write to key. Existing
// values are not replayed.
func (b *Board) Subscribe(key string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[key] = append(b.subscribers[key], sub)
}

// ProcessingStatus returns a copy of the per-stage status map.
func (b *Board) ProcessingStatus() map[string]string {
	status := map[string]string{}
	if m, ok := b.Read(KeyProcessingStatus).(map[string]string); ok {
		for k, v := range m {
			status[k] = v
		}
	}
	return status
}

// UpdateProcessingStatus sets the status of one stage, recording the
// elapsed session time when a stage completes. The stored map is replaced,
// never mutated in place, so copies handed out earlier stay stable.
func (b *Board) UpdateProcessingStatus(stage, status, source string) {
	b.update(KeyProcessingStatus, source, func(old any) any {
		next := map[string]string{}
		if m, ok := old.(map[string]string); ok {
			for k, v := range m {
				next[k] = v
			}
		}
		next[stage] = status
		if status == StatusCompleted && !b.start.IsZero() {
			b.stageTimings[stage] = append(b.stageTimings[stage], time.Since(b.start))
		}
		return next
	})
}

// AddStreamingUpdate appends one progress event for real-time feedback.
func (b *Board) AddStreamingUpdate(kind string, fields map[string]any, source string) {
	event := StreamingUpdate{
		ID:        shortuuid.New(),
		Type:      kind,
		Source:    source,
		Timestamp: time.Now(),
		Fields:    fields,
	}
	b.update(KeyStreamingUpdates, source, func(old any) any {
		updates, _ := old.([]StreamingUpdate)
		return append(updates, event)
	})
}

// AddError appends one failure record to the shared error log.
func (b *Board) AddError(message, source, severity string) {
	record := ErrorRecord{
		Message:   message,
		Source:    source,
		Severity:  severity,
		Timestamp: time.Now(),
	}
	b.update(KeyErrorMessages, source, func(old any) any {
		records, _ := old.([]ErrorRecord)
		return append(records, record)
	})
	slog.Error("board: error recorded", "source", source, "message", message)
}

// Errors returns the accumulated error records.
func (b *Board) Errors() []ErrorRecord {
	records, _ := b.Read(KeyErrorMessages).([]ErrorRecord)
	return records
}

// StreamingUpdates returns the accumulated progress events.
func (b *Board) StreamingUpdates() []StreamingUpdate {
	updates, _ := b.Read(KeyStreamingUpdates).([]StreamingUpdate)
	return updates
}

// IsComplete reports whether the session produced a final response whose
// quality score clears the completion threshold.
func (b *Board) IsComplete() bool {
	if !b.HasData(KeyFinalResponse) {
		return false
	}
	score, ok := b.Read(KeyQualityScore).(float64)
	return ok && score >= completionThreshold
}

// StartProcessing marks the session start for duration accounting.
func (b *Board) StartProcessing() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = time.Now()
	slog.Info("board: processing started")
}

// Clear resets entries to the initial schema and zeroes all counters so the
// board can host a fresh session without being reconstructed. Subscribers
// survive a clear.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialize()
	b.start = time.Time{}
	b.writes = 0
	b.reads = 0
	b.contributions = map[string]int{}
	b.stageTimings = map[string][]time.Duration{}
}

// Metrics returns a snapshot of the board's counters.
func (b *Board) Metrics() BoardMetrics {
	complete := b.IsComplete()

	b.mu.Lock()
	defer b.mu.Unlock()

	contributions := make(map[string]int, len(b.contributions))
	for k, v := range b.contributions {
		contributions[k] = v
	}
	timings := make(map[string][]time.Duration, len(b.stageTimings))
	for k, v := range b.stageTimings {
		timings[k] = append([]time.Duration(nil), v...)
	}

	var total time.Duration
	if !b.start.IsZero() {
		total = time.Since(b.start)
	}

	return BoardMetrics{
		TotalWrites:         b.writes,
		TotalReads:          b.reads,
		AgentContributions:  contributions,
		StageTimings:        timings,
		TotalProcessingTime: total,
		Size:                len(b.entries),
		Complete:            complete,
	}
}

// StateSummary returns a coarse snapshot of session progress.
func (b *Board) StateSummary() StateSummary {
	return StateSummary{
		HasInput:         b.HasData(KeyUserInput),
		HasThemes:        b.HasData(KeySelectedThemes),
		HasExcerpts:      b.HasData(KeyRetrievedExcerpts),
		HasResponse:      b.HasData(KeyFinalResponse),
		ProcessingStatus: b.ProcessingStatus(),
		ErrorCount:       len(b.Errors()),
		Metrics:          b.Metrics(),
	}
}
