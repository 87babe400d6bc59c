package blackboard

import (
	"log/slog"
	"sort"
	"time"
)

// Strategy selects how the planner arranges agents into a Plan.
type Strategy string

const (
	StrategySequential Strategy = "sequential"
	StrategyParallel   Strategy = "parallel"
	StrategyHybrid     Strategy = "hybrid"
	// StrategyAdaptive currently resolves to the hybrid layout; it exists so
	// callers can opt in to runtime plan adjustment once it lands.
	StrategyAdaptive Strategy = "adaptive"
)

// Plan arranges agents into parallel groups followed by sequential phases.
// The engine runs every group first, then every phase in order.
type Plan struct {
	ParallelGroups   [][]*Agent    `json:"-"`
	SequentialPhases [][]*Agent    `json:"-"`
	EstimatedTime    time.Duration `json:"estimated_time"`
	Strategy         Strategy      `json:"strategy"`
}

// Planner builds execution plans from the agents' declared prerequisite and
// output keys. seeded lists the board keys the engine populates before any
// agent runs; everything else must be produced by some agent's outputs.
type Planner struct {
	agents []*Agent
	seeded []string
}

func NewPlanner(agents []*Agent, seeded []string) *Planner {
	return &Planner{agents: agents, seeded: seeded}
}

// Build creates a plan for the given strategy.
func (p *Planner) Build(strategy Strategy) Plan {
	switch strategy {
	case StrategySequential:
		return p.sequential()
	case StrategyParallel:
		return p.parallel()
	case StrategyAdaptive:
		plan := p.hybrid()
		plan.Strategy = StrategyAdaptive
		return plan
	default:
		return p.hybrid()
	}
}

// sequential runs every agent on its own, highest priority first.
func (p *Planner) sequential() Plan {
	sorted := byPriority(p.agents)

	phases := make([][]*Agent, 0, len(sorted))
	var estimate time.Duration
	for _, agent := range sorted {
		phases = append(phases, []*Agent{agent})
		estimate += agent.EstimatedCompletion()
	}

	return Plan{
		SequentialPhases: phases,
		EstimatedTime:    estimate,
		Strategy:         StrategySequential,
	}
}

// parallel greedily packs mutually compatible agents into groups.
func (p *Planner) parallel() Plan {
	groups := parallelGroups(p.agents)

	var estimate time.Duration
	for _, group := range groups {
		if t := phaseEstimate(group); t > estimate {
			estimate = t
		}
	}

	return Plan{
		ParallelGroups: groups,
		EstimatedTime:  estimate,
		Strategy:       StrategyParallel,
	}
}

// hybrid layers agents by key coverage: an agent joins the earliest layer
// whose accumulated keys (seeded keys plus all earlier layers' outputs)
// satisfy its prerequisites. The first layer's parallel-capable agents form
// one parallel group; everything else becomes sequential phases in layer
// order, highest priority first within a layer.
func (p *Planner) hybrid() Plan {
	layers := p.layers()

	var groups [][]*Agent
	var phases [][]*Agent
	var estimate time.Duration

	for i, layer := range layers {
		layer = byPriority(layer)

		if i == 0 {
			var group []*Agent
			for _, agent := range layer {
				if agent.Capabilities().Parallel {
					group = append(group, agent)
				} else {
					phases = append(phases, []*Agent{agent})
					estimate += agent.EstimatedCompletion()
				}
			}
			if len(group) > 0 {
				groups = append(groups, group)
				estimate += groupEstimate(group)
			}
			continue
		}

		phases = append(phases, layer)
		estimate += phaseEstimate(layer)
	}

	return Plan{
		ParallelGroups:   groups,
		SequentialPhases: phases,
		EstimatedTime:    estimate,
		Strategy:         StrategyHybrid,
	}
}

// layers partitions agents by prerequisite reachability. Agents whose
// prerequisites can never be satisfied by the seeded keys or any agent's
// outputs are dropped with a warning rather than stalling the plan.
func (p *Planner) layers() [][]*Agent {
	available := map[string]bool{}
	for _, key := range p.seeded {
		available[key] = true
	}

	remaining := append([]*Agent(nil), p.agents...)
	var layers [][]*Agent

	for len(remaining) > 0 {
		var layer []*Agent
		var blocked []*Agent
		for _, agent := range remaining {
			if satisfied(agent.Prerequisites(), available) {
				layer = append(layer, agent)
			} else {
				blocked = append(blocked, agent)
			}
		}

		if len(layer) == 0 {
			for _, agent := range blocked {
				slog.Warn("planner: agent unreachable, omitted from plan",
					"agent", agent.Name(), "prerequisites", agent.Prerequisites())
			}
			break
		}

		for _, agent := range layer {
			for _, key := range agent.Outputs() {
				available[key] = true
			}
		}

		layers = append(layers, layer)
		remaining = blocked
	}

	return layers
}

func satisfied(prerequisites []string, available map[string]bool) bool {
	for _, key := range prerequisites {
		if !available[key] {
			return false
		}
	}
	return true
}

// parallelGroups greedily packs agents into groups where every member can
// run alongside every other.
func parallelGroups(agents []*Agent) [][]*Agent {
	remaining := append([]*Agent(nil), agents...)
	var groups [][]*Agent

	for len(remaining) > 0 {
		group := []*Agent{remaining[0]}
		remaining = remaining[1:]

		var rest []*Agent
		for _, candidate := range remaining {
			compatible := true
			for _, member := range group {
				if !candidate.CanRunParallelWith(member) {
					compatible = false
					break
				}
			}
			if compatible {
				group = append(group, candidate)
			} else {
				rest = append(rest, candidate)
			}
		}

		groups = append(groups, group)
		remaining = rest
	}

	return groups
}

// byPriority returns a copy sorted highest priority first. Names break ties
// so plans are deterministic.
func byPriority(agents []*Agent) []*Agent {
	sorted := append([]*Agent(nil), agents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority() != sorted[j].Priority() {
			return sorted[i].Priority() > sorted[j].Priority()
		}
		return sorted[i].Name() < sorted[j].Name()
	})
	return sorted
}

// groupEstimate is the wall-clock estimate for a parallel group: its
// slowest member.
func groupEstimate(group []*Agent) time.Duration {
	var max time.Duration
	for _, agent := range group {
		if t := agent.EstimatedCompletion(); t > max {
			max = t
		}
	}
	return max
}

// phaseEstimate is the wall-clock estimate for a sequential phase: the sum
// of its members.
func phaseEstimate(phase []*Agent) time.Duration {
	var total time.Duration
	for _, agent := range phase {
		total += agent.EstimatedCompletion()
	}
	return total
}
