package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tactix-ai/tactix/pkg/models"
)

// SaveRequest persists a request snapshot. Existing rows are replaced, so
// the caller can save at every status transition and the stored row always
// reflects the latest state. The trace and blocking task list are stored
// as JSON.
func (db *DB) SaveRequest(req *models.OrchestrationRequest) error {
	if req == nil || req.ID == "" {
		return fmt.Errorf("request must have an ID")
	}

	traceJSON, err := json.Marshal(req.Trace)
	if err != nil {
		return fmt.Errorf("marshal trace: %w", err)
	}

	var blockingJSON []byte
	if len(req.BlockingTasks) > 0 {
		blockingJSON, err = json.Marshal(req.BlockingTasks)
		if err != nil {
			return fmt.Errorf("marshal blocking tasks: %w", err)
		}
	}

	var finishedAt any
	if req.FinishedAt != nil {
		finishedAt = formatTime(*req.FinishedAt)
	}

	_, err = db.Exec(`
		INSERT OR REPLACE INTO requests
			(id, input, status, hierarchy_level, blocking_tasks, trace, submitted_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, req.ID, req.Input, string(req.Status), req.HierarchyLevel,
		nullBytes(blockingJSON), string(traceJSON), formatTime(req.SubmittedAt), finishedAt)
	if err != nil {
		return fmt.Errorf("save request: %w", err)
	}

	return nil
}

// GetRequest loads a request by ID. Returns nil if no row exists.
func (db *DB) GetRequest(id string) (*models.OrchestrationRequest, error) {
	row := db.QueryRow(`
		SELECT id, input, status, hierarchy_level, blocking_tasks, trace, submitted_at, finished_at
		FROM requests WHERE id = ?
	`, id)

	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

// ListRequests returns the most recent requests, newest first.
func (db *DB) ListRequests(limit int) ([]*models.OrchestrationRequest, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, input, status, hierarchy_level, blocking_tasks, trace, submitted_at, finished_at
		FROM requests ORDER BY submitted_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.OrchestrationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// PurgeTerminalRequests deletes terminal requests that finished before the
// cutoff. Returns the number of rows deleted.
func (db *DB) PurgeTerminalRequests(olderThan time.Time) (int64, error) {
	result, err := db.Exec(`
		DELETE FROM requests
		WHERE status IN (?, ?, ?) AND finished_at IS NOT NULL AND finished_at < ?
	`, string(models.RequestStatusCompleted), string(models.RequestStatusFailed),
		string(models.RequestStatusCancelled), formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge requests: %w", err)
	}
	return result.RowsAffected()
}

// scanner abstracts over *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*models.OrchestrationRequest, error) {
	var (
		req           models.OrchestrationRequest
		status        string
		blockingJSON  sql.NullString
		traceJSON     sql.NullString
		submittedAt   string
		finishedAtStr sql.NullString
	)

	err := s.Scan(&req.ID, &req.Input, &status, &req.HierarchyLevel,
		&blockingJSON, &traceJSON, &submittedAt, &finishedAtStr)
	if err != nil {
		return nil, err
	}

	req.Status = models.RequestStatus(status)

	if traceJSON.Valid && traceJSON.String != "" {
		if err := json.Unmarshal([]byte(traceJSON.String), &req.Trace); err != nil {
			return nil, fmt.Errorf("unmarshal trace: %w", err)
		}
	}
	if blockingJSON.Valid && blockingJSON.String != "" {
		if err := json.Unmarshal([]byte(blockingJSON.String), &req.BlockingTasks); err != nil {
			return nil, fmt.Errorf("unmarshal blocking tasks: %w", err)
		}
	}

	req.SubmittedAt, err = parseTime(submittedAt)
	if err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	req.FinishedAt = parseNullableTime(finishedAtStr)

	return &req, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
