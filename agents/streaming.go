package agents

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/strongafter/assistant/blackboard"
)

// StreamingResponse is the batched progress payload written under
// KeyStreamingResponse for transports to forward.
type StreamingResponse struct {
	Type      string                       `json:"type"`
	Updates   []blackboard.StreamingUpdate `json:"updates"`
	Timestamp time.Time                    `json:"timestamp"`
}

// Streaming forwards accumulated progress events to the streaming response
// slot, remembering how far it has already streamed so each run only emits
// new events.
type Streaming struct {
	mu       sync.Mutex
	streamed int
}

func NewStreaming() *Streaming { return &Streaming{} }

func (a *Streaming) Name() string  { return "streaming" }
func (a *Streaming) Stage() string { return blackboard.StageStreamingUpdate }

func (a *Streaming) Prerequisites() []string { return nil }

func (a *Streaming) Outputs() []string {
	return []string{blackboard.KeyStreamingResponse}
}

func (a *Streaming) CanContribute(b *blackboard.Board) bool {
	updates := len(b.StreamingUpdates())

	a.mu.Lock()
	defer a.mu.Unlock()
	// a board reset between sessions shrinks the update log under us
	if updates < a.streamed {
		a.streamed = 0
	}
	return updates > a.streamed
}

func (a *Streaming) Contribute(ctx context.Context, b *blackboard.Board) (blackboard.Contribution, error) {
	updates := b.StreamingUpdates()

	a.mu.Lock()
	if len(updates) < a.streamed {
		a.streamed = 0
	}
	pending := updates[a.streamed:]
	a.streamed = len(updates)
	a.mu.Unlock()

	if len(pending) > 0 {
		b.Write(blackboard.KeyStreamingResponse, StreamingResponse{
			Type:      "progress_update",
			Updates:   pending,
			Timestamp: time.Now(),
		}, a.Name())
		slog.Info("streaming: forwarded updates", "count", len(pending))
	}

	return blackboard.Contribution{Confidence: 1.0, Outputs: a.Outputs()}, nil
}

// ResetCursor rewinds the streamed-update cursor at session start.
func (a *Streaming) ResetCursor() {
	a.mu.Lock()
	a.streamed = 0
	a.mu.Unlock()
}
