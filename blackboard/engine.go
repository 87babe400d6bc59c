package blackboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/strongafter/assistant/catalog"
)

const (
	// DefaultTimeout bounds one parallel group or one sequential agent run.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxParallel caps concurrently running agents within a group.
	DefaultMaxParallel = 4
)

// seededKeys are populated by the engine before any agent runs; the planner
// treats them as satisfied prerequisites.
var seededKeys = []string{KeyUserInput, KeyPreprocessedText, KeyThemeCandidates}

// Citation is one superscript reference extracted from a generated summary,
// numbering into the excerpt list the summary was built from.
type Citation struct {
	Number int    `json:"number"`
	Type   string `json:"type"`
}

// Response is the structured value the summary stage writes under
// KeyFinalResponse.
type Response struct {
	Themes    []catalog.ScoredTheme `json:"themes"`
	Summary   string                `json:"summary"`
	Citations []Citation            `json:"citations"`
	Elapsed   time.Duration         `json:"processing_time"`
}

// ExecutionSummary aggregates per-agent results for one session.
type ExecutionSummary struct {
	ParallelResults   [][]Result `json:"parallel_results"`
	SequentialResults [][]Result `json:"sequential_results"`
	TotalAgents       int        `json:"total_agents_executed"`
	SuccessfulAgents  int        `json:"successful_agents"`
}

// SessionResult is what Run returns: the response fields plus the
// observability snapshot for the session. On a degraded session Success is
// false and Partial* carry whatever the board held when processing died.
type SessionResult struct {
	SessionID        string                 `json:"session_id"`
	Success          bool                   `json:"success"`
	Error            string                 `json:"error,omitempty"`
	Themes           []catalog.ScoredTheme  `json:"themes"`
	Summary          string                 `json:"summary"`
	QualityScore     float64                `json:"quality_score"`
	ProcessingTime   time.Duration          `json:"processing_time"`
	ProcessingStatus map[string]string      `json:"processing_status"`
	Execution        ExecutionSummary       `json:"execution_metrics"`
	BoardMetrics     BoardMetrics           `json:"blackboard_metrics"`
	AgentStatus      map[string]AgentStatus `json:"agent_status"`
	StreamingUpdates []StreamingUpdate      `json:"streaming_updates,omitempty"`
	PartialSummary   string                 `json:"partial_response,omitempty"`
	BoardState       *StateSummary          `json:"blackboard_state,omitempty"`
}

// EngineMetrics tracks the engine across sessions.
type EngineMetrics struct {
	TotalExecutions      int              `json:"total_executions"`
	SuccessfulExecutions int              `json:"successful_executions"`
	TotalTime            time.Duration    `json:"total_time"`
	SuccessRate          float64          `json:"success_rate"`
	AgentUtilization     map[string]Stats `json:"agent_utilization"`
}

// EngineConfig tunes one engine. Zero values fall back to defaults.
type EngineConfig struct {
	Timeout     time.Duration
	MaxParallel int64
}

// Engine owns the board for the duration of a session: it seeds input,
// builds a plan, drives the agents through it with fault isolation, and
// normalizes whatever landed on the board into a SessionResult. One engine
// runs one session at a time; concurrent Run calls serialize.
type Engine struct {
	board   *Board
	agents  []*Agent
	themes  []catalog.Theme
	planner *Planner
	timeout time.Duration
	slots   int64

	sessionMu sync.Mutex

	mu      sync.Mutex
	metrics EngineMetrics
}

// NewEngine wires agents and the theme catalog to a board.
func NewEngine(board *Board, agents []*Agent, themes []catalog.Theme, cfg EngineConfig) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = DefaultMaxParallel
	}
	slog.Info("engine: initialized", "agents", len(agents), "timeout", cfg.Timeout)
	return &Engine{
		board:   board,
		agents:  agents,
		themes:  themes,
		planner: NewPlanner(agents, seededKeys),
		timeout: cfg.Timeout,
		slots:   cfg.MaxParallel,
		metrics: EngineMetrics{AgentUtilization: map[string]Stats{}},
	}
}

// Board exposes the engine's board for subscribers and observability.
func (e *Engine) Board() *Board { return e.board }

// AgentStatuses snapshots every agent, keyed by name.
func (e *Engine) AgentStatuses() map[string]AgentStatus {
	statuses := make(map[string]AgentStatus, len(e.agents))
	for _, agent := range e.agents {
		statuses[agent.Name()] = agent.Status()
	}
	return statuses
}

// Run processes one user input end to end. It never returns an error:
// failures degrade to a SessionResult carrying whatever partial state the
// board accumulated.
func (e *Engine) Run(ctx context.Context, input string, strategy Strategy) SessionResult {
	e.sessionMu.Lock()
	defer e.sessionMu.Unlock()

	sessionID := uuid.NewString()
	start := time.Now()

	e.board.Clear()
	e.board.StartProcessing()

	slog.Info("engine: session started", "session", sessionID, "strategy", strategy)

	result := e.runSession(ctx, sessionID, input, strategy, start)

	if result.Success {
		e.recordSession(start, true)
		slog.Info("engine: session completed", "session", sessionID, "duration", result.ProcessingTime)
	} else {
		e.recordSession(start, false)
		slog.Error("engine: session degraded", "session", sessionID, "error", result.Error)
	}

	return result
}

// runSession executes the session body, converting a panic anywhere in the
// pipeline into a degraded result rather than letting it propagate.
func (e *Engine) runSession(ctx context.Context, sessionID, input string, strategy Strategy, start time.Time) (result SessionResult) {
	defer func() {
		if r := recover(); r != nil {
			result = e.degraded(sessionID, errors.Errorf("panic: %v", r), start)
		}
	}()

	e.seed(input)

	plan := e.planner.Build(strategy)
	summary := e.executePlan(ctx, plan)

	return e.finalize(sessionID, summary, start)
}

// seed writes the raw input, its normalized form, and the theme candidates
// so first-layer agents find their prerequisites in place.
func (e *Engine) seed(input string) {
	e.board.Write(KeyUserInput, input, SourceEngine)
	e.board.Write(KeyPreprocessedText, preprocess(input), SourceEngine)
	e.board.Write(KeyThemeCandidates, e.themes, SourceEngine)
	slog.Info("engine: board seeded", "themes", len(e.themes))
}

func preprocess(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func (e *Engine) executePlan(ctx context.Context, plan Plan) ExecutionSummary {
	var summary ExecutionSummary

	for i, group := range plan.ParallelGroups {
		slog.Info("engine: parallel group", "group", i+1, "of", len(plan.ParallelGroups), "agents", len(group))
		results := e.executeParallelGroup(ctx, group)
		summary.ParallelResults = append(summary.ParallelResults, results)
		summary.TotalAgents += len(results)
		summary.SuccessfulAgents += countSuccesses(results)
	}

	for i, phase := range plan.SequentialPhases {
		slog.Info("engine: sequential phase", "phase", i+1, "of", len(plan.SequentialPhases), "agents", len(phase))
		results := e.executeSequentialPhase(ctx, phase)
		summary.SequentialResults = append(summary.SequentialResults, results)
		summary.TotalAgents += len(results)
		summary.SuccessfulAgents += countSuccesses(results)
	}

	return summary
}

// executeParallelGroup runs the ready members of one group concurrently
// under a shared deadline. When the deadline fires, the whole group is
// reported as timed out; in-flight agents see the cancelled context and are
// expected to unwind.
func (e *Engine) executeParallelGroup(ctx context.Context, group []*Agent) []Result {
	var ready []*Agent
	for _, agent := range group {
		if agent.CanContribute() {
			ready = append(ready, agent)
		}
	}
	if len(ready) == 0 {
		slog.Warn("engine: no agents ready in parallel group")
		return nil
	}

	gctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type indexed struct {
		i int
		r Result
	}
	results := make(chan indexed, len(ready))
	sem := semaphore.NewWeighted(e.slots)

	var wg sync.WaitGroup
	for i, agent := range ready {
		wg.Add(1)
		go func(i int, agent *Agent) {
			defer wg.Done()
			if err := sem.Acquire(gctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			results <- indexed{i, agent.Execute(gctx)}
		}(i, agent)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(results)
		// agents that never acquired a slot before cancellation produced no
		// result; report them as timed out
		out := make([]Result, len(ready))
		for i, agent := range ready {
			out[i] = Result{Agent: agent.Name(), Err: context.DeadlineExceeded, Error: "timeout"}
		}
		for r := range results {
			out[r.i] = r.r
		}
		return out

	case <-gctx.Done():
		slog.Error("engine: parallel group timed out", "timeout", e.timeout)
		out := make([]Result, len(ready))
		for i, agent := range ready {
			out[i] = Result{Agent: agent.Name(), Err: gctx.Err(), Error: "timeout"}
		}
		return out
	}
}

// executeSequentialPhase runs agents one at a time with a per-agent
// deadline. A failing agent is logged and the phase continues best-effort.
func (e *Engine) executeSequentialPhase(ctx context.Context, phase []*Agent) []Result {
	var results []Result

	for _, agent := range phase {
		if !agent.CanContribute() {
			slog.Info("engine: agent not ready, skipping", "agent", agent.Name())
			continue
		}

		result := e.executeWithTimeout(ctx, agent)
		results = append(results, result)

		if !result.Success {
			slog.Warn("engine: agent failed, continuing", "agent", agent.Name(), "error", result.Error)
		}
	}

	return results
}

func (e *Engine) executeWithTimeout(ctx context.Context, agent *Agent) Result {
	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ch := make(chan Result, 1)
	go func() {
		ch <- agent.Execute(actx)
	}()

	select {
	case result := <-ch:
		return result
	case <-actx.Done():
		slog.Error("engine: agent timed out", "agent", agent.Name(), "timeout", e.timeout)
		return Result{Agent: agent.Name(), Err: actx.Err(), Error: "timeout"}
	}
}

// finalize normalizes whatever reached the board into the session result.
// The final response may be a structured Response or a bare string depending
// on which agent produced it.
func (e *Engine) finalize(sessionID string, execution ExecutionSummary, start time.Time) SessionResult {
	summary := normalizeSummary(e.board.Read(KeyFinalResponse))
	themes, _ := e.board.Read(KeySelectedThemes).([]catalog.ScoredTheme)
	quality, _ := e.board.Read(KeyQualityScore).(float64)

	if themes == nil {
		themes = []catalog.ScoredTheme{}
	}

	return SessionResult{
		SessionID:        sessionID,
		Success:          true,
		Themes:           themes,
		Summary:          summary,
		QualityScore:     quality,
		ProcessingTime:   time.Since(start),
		ProcessingStatus: e.board.ProcessingStatus(),
		Execution:        execution,
		BoardMetrics:     e.board.Metrics(),
		AgentStatus:      e.AgentStatuses(),
		StreamingUpdates: e.board.StreamingUpdates(),
	}
}

func normalizeSummary(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case Response:
		return v.Summary
	case *Response:
		if v == nil {
			return ""
		}
		return v.Summary
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// degraded salvages partial state after a pipeline panic.
func (e *Engine) degraded(sessionID string, err error, start time.Time) SessionResult {
	slog.Error("engine: degrading after failure", "session", sessionID, "error", err)

	themes, _ := e.board.Read(KeySelectedThemes).([]catalog.ScoredTheme)
	state := e.board.StateSummary()

	return SessionResult{
		SessionID:      sessionID,
		Success:        false,
		Error:          err.Error(),
		Themes:         themes,
		ProcessingTime: time.Since(start),
		PartialSummary: normalizeSummary(e.board.Read(KeyFinalResponse)),
		BoardState:     &state,
		AgentStatus:    e.AgentStatuses(),
	}
}

func (e *Engine) recordSession(start time.Time, success bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.metrics.TotalExecutions++
	e.metrics.TotalTime += time.Since(start)
	if success {
		e.metrics.SuccessfulExecutions++
	}
	e.metrics.SuccessRate = float64(e.metrics.SuccessfulExecutions) / float64(e.metrics.TotalExecutions)

	for _, agent := range e.agents {
		e.metrics.AgentUtilization[agent.Name()] = agent.Stats()
	}
}

// Metrics returns a snapshot of the engine's cross-session counters.
func (e *Engine) Metrics() EngineMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	utilization := make(map[string]Stats, len(e.metrics.AgentUtilization))
	for name, stats := range e.metrics.AgentUtilization {
		utilization[name] = stats
	}

	snapshot := e.metrics
	snapshot.AgentUtilization = utilization
	return snapshot
}

// Reset clears cross-session counters and every agent's state.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.metrics = EngineMetrics{AgentUtilization: map[string]Stats{}}
	e.mu.Unlock()

	for _, agent := range e.agents {
		agent.Reset()
	}
	slog.Info("engine: reset")
}

func countSuccesses(results []Result) int {
	n := 0
	for _, result := range results {
		if result.Success {
			n++
		}
	}
	return n
}
