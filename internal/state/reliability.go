package state

import (
	"fmt"
	"time"

	"github.com/tactix-ai/tactix/pkg/models"
)

// ReliabilityStore records per-agent dispatch outcomes and serves success
// rates back to the adaptive coordination strategy. It satisfies the
// coordinator's ReliabilitySource interface.
type ReliabilityStore struct {
	db *DB
}

// NewReliabilityStore creates a reliability store backed by the given database.
func NewReliabilityStore(db *DB) *ReliabilityStore {
	return &ReliabilityStore{db: db}
}

// RecordOutcome increments the success or failure counter for an agent on
// a task type. Outcomes accumulate across process restarts.
func (s *ReliabilityStore) RecordOutcome(agentID string, taskType models.TaskType, success bool) {
	successInc, failureInc := 0, 1
	if success {
		successInc, failureInc = 1, 0
	}

	// Best effort. A failed write costs one sample, not correctness.
	s.db.Exec(`
		INSERT INTO agent_reliability (agent_id, task_type, successes, failures, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, task_type) DO UPDATE SET
			successes = successes + excluded.successes,
			failures = failures + excluded.failures,
			updated_at = excluded.updated_at
	`, agentID, string(taskType), successInc, failureInc, formatTime(time.Now()))
}

// SuccessRate returns the fraction of successful dispatches for an agent
// across all task types, and the number of samples behind it. An agent
// with no history reports rate 0 with 0 samples.
func (s *ReliabilityStore) SuccessRate(agentID string) (float64, int) {
	var successes, failures int
	row := s.db.QueryRow(`
		SELECT COALESCE(SUM(successes), 0), COALESCE(SUM(failures), 0)
		FROM agent_reliability WHERE agent_id = ?
	`, agentID)
	if err := row.Scan(&successes, &failures); err != nil {
		return 0, 0
	}

	total := successes + failures
	if total == 0 {
		return 0, 0
	}
	return float64(successes) / float64(total), total
}

// SuccessRateForType returns the success rate for an agent on one task type.
func (s *ReliabilityStore) SuccessRateForType(agentID string, taskType models.TaskType) (float64, int) {
	var successes, failures int
	row := s.db.QueryRow(`
		SELECT COALESCE(successes, 0), COALESCE(failures, 0)
		FROM agent_reliability WHERE agent_id = ? AND task_type = ?
	`, agentID, string(taskType))
	if err := row.Scan(&successes, &failures); err != nil {
		return 0, 0
	}

	total := successes + failures
	if total == 0 {
		return 0, 0
	}
	return float64(successes) / float64(total), total
}

// TopAgents returns agent IDs ordered by success rate descending,
// restricted to agents with at least minSamples recorded outcomes.
func (s *ReliabilityStore) TopAgents(minSamples, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(`
		SELECT agent_id,
			CAST(SUM(successes) AS REAL) / (SUM(successes) + SUM(failures)) AS rate
		FROM agent_reliability
		GROUP BY agent_id
		HAVING SUM(successes) + SUM(failures) >= ?
		ORDER BY rate DESC, agent_id ASC
		LIMIT ?
	`, minSamples, limit)
	if err != nil {
		return nil, fmt.Errorf("query top agents: %w", err)
	}
	defer rows.Close()

	var agents []string
	for rows.Next() {
		var id string
		var rate float64
		if err := rows.Scan(&id, &rate); err != nil {
			return nil, fmt.Errorf("scan agent row: %w", err)
		}
		agents = append(agents, id)
	}
	return agents, rows.Err()
}
