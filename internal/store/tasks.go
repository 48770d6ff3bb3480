package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskrelay/internal/logging"
)

// Task is the durable output of the pipeline: one work item per surviving
// inbound message. ExternalMessageID is the idempotency anchor.
type Task struct {
	ID                string
	ExternalMessageID string
	SourceItemID      string
	Title             string
	Description       string
	CreatedBy         string
	AIGenerated       bool
	AIRecommended     bool
	CreatedAt         time.Time
}

// CreateTask inserts a new task. A unique-constraint violation on
// external_message_id is returned as ErrDuplicateTask so callers can treat
// the message as already processed instead of failing the batch.
func (s *Store) CreateTask(ctx context.Context, t *Task) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, external_message_id, source_item_id, title, description, created_by, ai_generated, ai_recommended, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ExternalMessageID, t.SourceItemID, t.Title, t.Description, t.CreatedBy,
		boolToInt(t.AIGenerated), boolToInt(t.AIRecommended), t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			logging.StoreDebug("Duplicate task insert for external message %s", t.ExternalMessageID)
			return nil, ErrDuplicateTask
		}
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logging.Store("Task created: id=%s external_message_id=%s", t.ID, t.ExternalMessageID)
	return t, nil
}

// FindTaskByExternalMessageID returns the task created for the given
// external message id, or nil when no such task exists.
func (s *Store) FindTaskByExternalMessageID(ctx context.Context, externalID string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, external_message_id, source_item_id, title, description, created_by, ai_generated, ai_recommended, created_at
		 FROM tasks WHERE external_message_id = ?`, externalID)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return t, nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, external_message_id, source_item_id, title, description, created_by, ai_generated, ai_recommended, created_at
		 FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return t, nil
}

func scanTask(row *sql.Row) (*Task, error) {
	var t Task
	var aiGenerated, aiRecommended int
	var description, createdBy sql.NullString
	if err := row.Scan(&t.ID, &t.ExternalMessageID, &t.SourceItemID, &t.Title, &description, &createdBy, &aiGenerated, &aiRecommended, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.CreatedBy = createdBy.String
	t.AIGenerated = aiGenerated != 0
	t.AIRecommended = aiRecommended != 0
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
