package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongafter/assistant/blackboard"
)

func TestStreamingForwardsOnlyNewUpdates(t *testing.T) {
	b := blackboard.NewBoard()
	agent := NewStreaming()

	assert.False(t, agent.CanContribute(b), "nothing to forward yet")

	b.AddStreamingUpdate("excerpts_retrieved", map[string]any{"total_excerpts": 5}, "excerpt-retrieval")
	b.AddStreamingUpdate("summary_complete", map[string]any{"summary_length": 300}, "summary-generation")

	require.True(t, agent.CanContribute(b))
	_, err := agent.Contribute(context.Background(), b)
	require.NoError(t, err)

	response, ok := b.Read(blackboard.KeyStreamingResponse).(StreamingResponse)
	require.True(t, ok)
	assert.Equal(t, "progress_update", response.Type)
	require.Len(t, response.Updates, 2)

	// already forwarded, nothing pending
	assert.False(t, agent.CanContribute(b))

	b.AddStreamingUpdate("extra", nil, "test")
	require.True(t, agent.CanContribute(b))
	_, err = agent.Contribute(context.Background(), b)
	require.NoError(t, err)

	response, _ = b.Read(blackboard.KeyStreamingResponse).(StreamingResponse)
	require.Len(t, response.Updates, 1)
	assert.Equal(t, "extra", response.Updates[0].Type)
}

func TestStreamingCursorRewindsAfterBoardClear(t *testing.T) {
	b := blackboard.NewBoard()
	agent := NewStreaming()

	b.AddStreamingUpdate("one", nil, "test")
	b.AddStreamingUpdate("two", nil, "test")
	_, err := agent.Contribute(context.Background(), b)
	require.NoError(t, err)

	b.Clear()

	assert.False(t, agent.CanContribute(b), "empty log after clear")

	b.AddStreamingUpdate("fresh", nil, "test")
	require.True(t, agent.CanContribute(b), "cursor rewound to the new log")

	_, err = agent.Contribute(context.Background(), b)
	require.NoError(t, err)

	response, _ := b.Read(blackboard.KeyStreamingResponse).(StreamingResponse)
	require.Len(t, response.Updates, 1)
	assert.Equal(t, "fresh", response.Updates[0].Type)
}

func TestStreamingResetCursor(t *testing.T) {
	b := blackboard.NewBoard()
	agent := NewStreaming()

	b.AddStreamingUpdate("one", nil, "test")
	_, err := agent.Contribute(context.Background(), b)
	require.NoError(t, err)

	agent.ResetCursor()
	assert.True(t, agent.CanContribute(b), "reset re-exposes existing updates")
}
