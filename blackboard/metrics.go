package blackboard

import "time"

// Stats tracks one agent's execution history. The success rate is a rolling
// average over all executions, seeded at 1.0 so an agent that has never run
// is not penalized by the planner.
type Stats struct {
	Executions     int           `json:"total_executions"`
	TotalTime      time.Duration `json:"total_time"`
	AverageTime    time.Duration `json:"average_time"`
	SuccessRate    float64       `json:"success_rate"`
	LastConfidence float64       `json:"last_confidence"`
}

// NewStats returns the starting stats for a fresh agent.
func NewStats() Stats {
	return Stats{SuccessRate: 1.0}
}

// Record folds one execution into the rolling stats.
func (s *Stats) Record(duration time.Duration, success bool, confidence float64) {
	s.Executions++
	s.TotalTime += duration
	s.AverageTime = s.TotalTime / time.Duration(s.Executions)

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	n := float64(s.Executions)
	s.SuccessRate = (s.SuccessRate*(n-1) + outcome) / n
	s.LastConfidence = confidence
}
