package blackboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAgent(b *Board, name string, priority int, prereqs, outputs []string, parallel bool, estimate time.Duration) *Agent {
	caps := DefaultCapabilities()
	caps.Parallel = parallel
	caps.EstimatedDuration = estimate
	return NewAgent(&stubContributor{
		name:    name,
		prereqs: prereqs,
		outputs: outputs,
	}, b, priority, caps)
}

// pipelineAgents builds a roster shaped like the production one: a scorer and
// a streamer runnable from seeded keys, then retrieval, summary, and QA
// chained by key dependencies.
func pipelineAgents(b *Board) []*Agent {
	return []*Agent{
		newTestAgent(b, "scorer", 10,
			[]string{KeyPreprocessedText, KeyThemeCandidates},
			[]string{KeySelectedThemes, KeyThemeScores},
			true, 3*time.Second),
		newTestAgent(b, "retrieval", 7,
			[]string{KeySelectedThemes},
			[]string{KeyRetrievedExcerpts},
			true, 500*time.Millisecond),
		newTestAgent(b, "summary", 6,
			[]string{KeySelectedThemes},
			[]string{KeyFinalResponse, KeyCitations},
			false, 5*time.Second),
		newTestAgent(b, "qa", 4,
			[]string{KeyFinalResponse},
			[]string{KeyQualityScore, KeyQualityReport},
			true, 200*time.Millisecond),
		newTestAgent(b, "streamer", 3,
			nil,
			[]string{KeyStreamingResponse},
			true, 100*time.Millisecond),
	}
}

func phaseNames(phases [][]*Agent) [][]string {
	out := make([][]string, len(phases))
	for i, phase := range phases {
		names := make([]string, len(phase))
		for j, agent := range phase {
			names[j] = agent.Name()
		}
		out[i] = names
	}
	return out
}

func TestPlannerSequential(t *testing.T) {
	b := NewBoard()
	planner := NewPlanner(pipelineAgents(b), seededKeys)

	plan := planner.Build(StrategySequential)

	assert.Equal(t, StrategySequential, plan.Strategy)
	assert.Empty(t, plan.ParallelGroups)
	assert.Equal(t, [][]string{
		{"scorer"}, {"retrieval"}, {"summary"}, {"qa"}, {"streamer"},
	}, phaseNames(plan.SequentialPhases))

	// sum of every agent's declared estimate
	assert.Equal(t, 3*time.Second+500*time.Millisecond+5*time.Second+200*time.Millisecond+100*time.Millisecond, plan.EstimatedTime)
}

func TestPlannerParallelGroupsRespectDependencies(t *testing.T) {
	b := NewBoard()
	planner := NewPlanner(pipelineAgents(b), seededKeys)

	plan := planner.Build(StrategyParallel)

	assert.Equal(t, StrategyParallel, plan.Strategy)
	assert.Empty(t, plan.SequentialPhases)

	// no group may contain both a producer and a consumer of the same key
	for _, group := range plan.ParallelGroups {
		for i, a := range group {
			for _, other := range group[i+1:] {
				assert.True(t, a.CanRunParallelWith(other),
					"%s and %s grouped but incompatible", a.Name(), other.Name())
			}
		}
	}

	// scorer produces selected_themes that retrieval and summary consume
	first := phaseNames(plan.ParallelGroups)[0]
	assert.Contains(t, first, "scorer")
	assert.NotContains(t, first, "retrieval")
	assert.NotContains(t, first, "summary")

	// every registered agent appears exactly once across the groups
	seen := map[string]int{}
	for _, group := range plan.ParallelGroups {
		for _, a := range group {
			seen[a.Name()]++
		}
	}
	assert.Equal(t, map[string]int{
		"scorer": 1, "retrieval": 1, "summary": 1, "qa": 1, "streamer": 1,
	}, seen)
}

func TestPlannerParallelEstimateIsSlowestGroup(t *testing.T) {
	b := NewBoard()
	agents := []*Agent{
		newTestAgent(b, "fast", 5, nil, []string{"a"}, true, time.Second),
		newTestAgent(b, "slow", 5, nil, []string{"b"}, true, 4*time.Second),
	}
	planner := NewPlanner(agents, seededKeys)

	plan := planner.Build(StrategyParallel)

	require.Len(t, plan.ParallelGroups, 1)
	assert.Equal(t, 4*time.Second, plan.EstimatedTime)
}

func TestPlannerHybridLayersByKeyCoverage(t *testing.T) {
	b := NewBoard()
	planner := NewPlanner(pipelineAgents(b), seededKeys)

	plan := planner.Build(StrategyHybrid)

	assert.Equal(t, StrategyHybrid, plan.Strategy)

	// scorer and streamer are both satisfiable from seeded keys and
	// parallel-capable, so they form the opening group
	require.Len(t, plan.ParallelGroups, 1)
	assert.Equal(t, []string{"scorer", "streamer"}, phaseNames(plan.ParallelGroups)[0])

	// retrieval and summary unlock after scorer, qa after summary
	assert.Equal(t, [][]string{
		{"retrieval", "summary"},
		{"qa"},
	}, phaseNames(plan.SequentialPhases))
}

func TestPlannerHybridNonParallelFirstLayerAgent(t *testing.T) {
	b := NewBoard()
	agents := []*Agent{
		newTestAgent(b, "grouped", 5, nil, []string{"a"}, true, time.Second),
		newTestAgent(b, "solo", 9, nil, []string{"b"}, false, time.Second),
	}
	planner := NewPlanner(agents, seededKeys)

	plan := planner.Build(StrategyHybrid)

	// the serial-only agent leads as its own phase instead of joining the group
	assert.Equal(t, [][]string{{"solo"}}, phaseNames(plan.SequentialPhases))
	require.Len(t, plan.ParallelGroups, 1)
	assert.Equal(t, []string{"grouped"}, phaseNames(plan.ParallelGroups)[0])
}

func TestPlannerHybridOmitsUnreachableAgents(t *testing.T) {
	b := NewBoard()
	agents := append(pipelineAgents(b),
		newTestAgent(b, "orphan", 8, []string{"never_produced"}, []string{"x"}, true, time.Second))
	planner := NewPlanner(agents, seededKeys)

	plan := planner.Build(StrategyHybrid)

	for _, names := range phaseNames(plan.SequentialPhases) {
		assert.NotContains(t, names, "orphan")
	}
	for _, names := range phaseNames(plan.ParallelGroups) {
		assert.NotContains(t, names, "orphan")
	}
}

func TestPlannerAdaptiveMatchesHybridLayout(t *testing.T) {
	b := NewBoard()
	planner := NewPlanner(pipelineAgents(b), seededKeys)

	hybrid := planner.Build(StrategyHybrid)
	adaptive := planner.Build(StrategyAdaptive)

	assert.Equal(t, StrategyAdaptive, adaptive.Strategy)
	assert.Equal(t, phaseNames(hybrid.ParallelGroups), phaseNames(adaptive.ParallelGroups))
	assert.Equal(t, phaseNames(hybrid.SequentialPhases), phaseNames(adaptive.SequentialPhases))
	assert.Equal(t, hybrid.EstimatedTime, adaptive.EstimatedTime)
}

func TestPlannerPriorityTieBrokenByName(t *testing.T) {
	b := NewBoard()
	agents := []*Agent{
		newTestAgent(b, "zeta", 5, nil, []string{"a"}, true, 0),
		newTestAgent(b, "alpha", 5, nil, []string{"b"}, true, 0),
	}

	plan := NewPlanner(agents, seededKeys).Build(StrategySequential)

	assert.Equal(t, [][]string{{"alpha"}, {"zeta"}}, phaseNames(plan.SequentialPhases))
}
