package blackboard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Capabilities declares an agent's execution constraints.
type Capabilities struct {
	Parallel            bool          `json:"can_process_parallel"`
	RequiresGPU         bool          `json:"requires_gpu"`
	EstimatedDuration   time.Duration `json:"estimated_processing_time"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	FallbackAvailable   bool          `json:"fallback_available"`
}

// DefaultCapabilities matches an ordinary CPU-bound agent that tolerates
// parallel execution.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Parallel:            true,
		EstimatedDuration:   time.Second,
		ConfidenceThreshold: 0.7,
	}
}

// Contribution is what a contributor reports back on success.
type Contribution struct {
	Confidence float64
	Outputs    []string
}

// Contributor is the contract one knowledge source implements. CanContribute
// consults board state (prerequisite keys present, own output not yet
// produced); Contribute performs the work and writes its outputs to the
// board itself.
type Contributor interface {
	Name() string
	Stage() string
	CanContribute(b *Board) bool
	Contribute(ctx context.Context, b *Board) (Contribution, error)
	Prerequisites() []string
	Outputs() []string
}

// Result reports one execution attempt.
type Result struct {
	Agent      string        `json:"agent"`
	Success    bool          `json:"success"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"execution_time"`
	Confidence float64       `json:"confidence,omitempty"`
	Outputs    []string      `json:"outputs,omitempty"`
}

// AgentStatus is a snapshot of one agent for observability endpoints.
type AgentStatus struct {
	Name         string       `json:"name"`
	Priority     int          `json:"priority"`
	Running      bool         `json:"is_running"`
	Ready        bool         `json:"can_contribute"`
	Capabilities Capabilities `json:"capabilities"`
	Stats        Stats        `json:"metrics"`
	Executions   int          `json:"execution_count"`
	LastRun      time.Time    `json:"last_execution,omitzero"`
}

// Agent wraps a Contributor with the shared execution lifecycle: reentrancy
// guard, readiness gate, status announcements on the board, error capture,
// and rolling stats.
type Agent struct {
	contributor Contributor
	board       *Board
	priority    int
	caps        Capabilities

	mu         sync.Mutex
	running    bool
	executions int
	lastRun    time.Time
	stats      Stats
}

// NewAgent wires a contributor to its board. Higher priority runs first in
// sequential phases.
func NewAgent(c Contributor, board *Board, priority int, caps Capabilities) *Agent {
	slog.Info("agent: initialized", "name", c.Name(), "priority", priority)
	return &Agent{
		contributor: c,
		board:       board,
		priority:    priority,
		caps:        caps,
		stats:       NewStats(),
	}
}

func (a *Agent) Name() string { return a.contributor.Name() }

func (a *Agent) Stage() string { return a.contributor.Stage() }

func (a *Agent) Priority() int { return a.priority }

func (a *Agent) Capabilities() Capabilities { return a.caps }

func (a *Agent) Prerequisites() []string { return a.contributor.Prerequisites() }

func (a *Agent) Outputs() []string { return a.contributor.Outputs() }

// CanContribute reports whether the agent would do useful work right now.
func (a *Agent) CanContribute() bool {
	return a.contributor.CanContribute(a.board)
}

// Execute runs the agent once: gate on readiness, announce status, run the
// contributor, capture failures (including panics) as board errors. A second
// Execute while one is in flight returns immediately without running.
func (a *Agent) Execute(ctx context.Context) Result {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		slog.Warn("agent: already running", "name", a.Name())
		return Result{Agent: a.Name(), Err: errors.New("agent already running"), Error: "agent already running"}
	}
	a.running = true
	a.mu.Unlock()

	start := time.Now()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.executions++
		a.lastRun = time.Now()
		a.mu.Unlock()
	}()

	slog.Info("agent: starting", "name", a.Name())

	if !a.CanContribute() {
		return Result{
			Agent:    a.Name(),
			Err:      errors.New("prerequisites not met"),
			Error:    "prerequisites not met",
			Duration: time.Since(start),
		}
	}

	a.board.UpdateProcessingStatus(a.Stage(), StatusRunning, a.Name())

	contribution, err := a.runContributor(ctx)
	duration := time.Since(start)

	if err != nil {
		msg := fmt.Sprintf("agent %s failed: %v", a.Name(), err)
		slog.Error("agent: failed", "name", a.Name(), "error", err, "duration", duration)

		a.recordStats(duration, false, 0)
		a.board.AddError(msg, a.Name(), SeverityError)
		a.board.UpdateProcessingStatus(a.Stage(), StatusFailed, a.Name())

		return Result{Agent: a.Name(), Err: err, Error: msg, Duration: duration}
	}

	a.recordStats(duration, true, contribution.Confidence)
	a.board.UpdateProcessingStatus(a.Stage(), StatusCompleted, a.Name())
	slog.Info("agent: completed", "name", a.Name(), "duration", duration)

	return Result{
		Agent:      a.Name(),
		Success:    true,
		Duration:   duration,
		Confidence: contribution.Confidence,
		Outputs:    contribution.Outputs,
	}
}

// runContributor converts a contributor panic into an error so one broken
// agent cannot take the session down.
func (a *Agent) runContributor(ctx context.Context) (c Contribution, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return a.contributor.Contribute(ctx, a.board)
}

func (a *Agent) recordStats(duration time.Duration, success bool, confidence float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Record(duration, success, confidence)
}

// CanRunParallelWith reports whether two agents may share a parallel group:
// both must be parallel-capable, must not contend for the GPU, and neither
// may consume a key the other produces.
func (a *Agent) CanRunParallelWith(other *Agent) bool {
	if !a.caps.Parallel || !other.caps.Parallel {
		return false
	}
	if a.caps.RequiresGPU && other.caps.RequiresGPU {
		return false
	}
	if intersects(a.Outputs(), other.Prerequisites()) {
		return false
	}
	if intersects(other.Outputs(), a.Prerequisites()) {
		return false
	}
	return true
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// EstimatedCompletion returns the historical average runtime when one
// exists, otherwise the declared estimate.
func (a *Agent) EstimatedCompletion() time.Duration {
	a.mu.Lock()
	avg := a.stats.AverageTime
	a.mu.Unlock()
	if avg > 0 {
		return avg
	}
	return a.caps.EstimatedDuration
}

// Stats returns a copy of the agent's rolling stats.
func (a *Agent) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Status returns a snapshot for observability endpoints.
func (a *Agent) Status() AgentStatus {
	ready := a.CanContribute()
	a.mu.Lock()
	defer a.mu.Unlock()
	return AgentStatus{
		Name:         a.contributor.Name(),
		Priority:     a.priority,
		Running:      a.running,
		Ready:        ready,
		Capabilities: a.caps,
		Stats:        a.stats,
		Executions:   a.executions,
		LastRun:      a.lastRun,
	}
}

// Reset clears execution state and stats. Intended for tests.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.executions = 0
	a.lastRun = time.Time{}
	a.stats = NewStats()
}

func (a *Agent) String() string {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	state := "idle"
	if running {
		state = "running"
	}
	return fmt.Sprintf("%s(status=%s, priority=%d)", a.Name(), state, a.priority)
}
