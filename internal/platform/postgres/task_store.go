package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/store"
)

const taskColumns = `id, owner_id, kind, status, priority, input, result, error_message,
	credits_required, created_at, started_at, completed_at, updated_at`

// PostgresTaskStore implements store.TaskStore on the generation_tasks table.
// Every transition is a single UPDATE guarded by the expected prior status.
type PostgresTaskStore struct {
	db       store.DBTX
	logger   *slog.Logger
	timeFunc func() time.Time
}

var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgresTaskStore.
// It panics if db is nil.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:       db,
		logger:   logger.With(slog.String("component", "task_store")),
		timeFunc: time.Now,
	}
}

func (s *PostgresTaskStore) now() time.Time {
	return s.timeFunc().UTC()
}

// Create inserts a new pending task.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if task == nil || task.ID == uuid.Nil || task.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: task id and owner are required", store.ErrInvalidEntity)
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: new tasks must be pending, got %s", store.ErrInvalidEntity, task.Status)
	}

	input, err := json.Marshal(task.Input)
	if err != nil {
		return fmt.Errorf("failed to encode task input: %w", err)
	}

	query := `
		INSERT INTO generation_tasks
			(id, owner_id, kind, status, priority, input, credits_required, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.OwnerID,
		string(task.Kind),
		string(task.Status),
		task.Priority,
		string(input),
		task.CreditsRequired,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert task",
			slog.String("task_id", task.ID.String()),
			slog.String("owner_id", task.OwnerID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create task: %w", MapError(err))
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.Int("priority", task.Priority),
		slog.Int("credits_required", task.CreditsRequired))
	return nil
}

// GetByID retrieves a task by ID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE id = $1`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return task, nil
}

// ListByOwner returns the owner's most recent tasks, newest first.
func (s *PostgresTaskStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		log.Error("failed to list tasks",
			slog.String("owner_id", ownerID.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list tasks: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	tasks := make([]*domain.Task, 0, limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", MapError(err))
	}
	return tasks, nil
}

// Claim moves a specific pending task to processing.
func (s *PostgresTaskStore) Claim(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `
		UPDATE generation_tasks
		SET status = 'processing', started_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id, s.now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.conflictOrNotFound(ctx, id)
		}
		return nil, fmt.Errorf("failed to claim task: %w", MapError(err))
	}
	return task, nil
}

// ClaimNext claims the highest priority, oldest pending task. Rows locked
// by a concurrent claimer are skipped rather than waited on.
func (s *PostgresTaskStore) ClaimNext(ctx context.Context) (*domain.Task, error) {
	query := `
		UPDATE generation_tasks
		SET status = 'processing', started_at = $1, updated_at = $1
		WHERE id = (
			SELECT id FROM generation_tasks
			WHERE status = 'pending'
			ORDER BY priority ASC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query, s.now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to claim next task: %w", MapError(err))
	}
	return task, nil
}

// Complete moves a processing task to completed with its result.
func (s *PostgresTaskStore) Complete(ctx context.Context, id uuid.UUID, result *domain.Result) error {
	if result == nil {
		return fmt.Errorf("%w: result is required", store.ErrInvalidEntity)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}

	query := `
		UPDATE generation_tasks
		SET status = 'completed', result = $2, completed_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'processing'
	`
	res, err := s.db.ExecContext(ctx, query, id, string(encoded), s.now())
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", MapError(err))
	}
	return s.checkTransition(ctx, res, id)
}

// Fail moves a task from expected to failed.
func (s *PostgresTaskStore) Fail(ctx context.Context, id uuid.UUID, expected domain.TaskStatus, message string) error {
	if !domain.CanTransition(expected, domain.TaskStatusFailed) {
		return fmt.Errorf("%w: %s -> failed", domain.ErrInvalidTransition, expected)
	}

	query := `
		UPDATE generation_tasks
		SET status = 'failed', error_message = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND status = $2
	`
	res, err := s.db.ExecContext(ctx, query, id, string(expected), message, s.now())
	if err != nil {
		return fmt.Errorf("failed to fail task: %w", MapError(err))
	}
	return s.checkTransition(ctx, res, id)
}

// Cancel moves the owner's pending or processing task to cancelled.
func (s *PostgresTaskStore) Cancel(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	query := `
		UPDATE generation_tasks
		SET status = 'cancelled', error_message = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND owner_id = $2 AND status IN ('pending', 'processing')
		RETURNING ` + taskColumns

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id, ownerID, domain.MessageCancelledByUser, s.now()))
	if err == nil {
		return task, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to cancel task: %w", MapError(err))
	}

	current, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM generation_tasks WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to load task after cancel: %w", MapError(err))
	}
	return current, store.ErrStatusConflict
}

// AttachStoredImages writes the post-upload result once.
func (s *PostgresTaskStore) AttachStoredImages(ctx context.Context, id uuid.UUID, result *domain.Result) error {
	if result == nil {
		return fmt.Errorf("%w: result is required", store.ErrInvalidEntity)
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}

	query := `
		UPDATE generation_tasks
		SET result = $2, updated_at = $3
		WHERE id = $1
			AND status = 'completed'
			AND result->>'uploadPending' = 'true'
	`
	res, err := s.db.ExecContext(ctx, query, id, string(encoded), s.now())
	if err != nil {
		return fmt.Errorf("failed to attach stored images: %w", MapError(err))
	}
	return s.checkTransition(ctx, res, id)
}

// FailStale fails every task that has sat in status since before cutoff.
func (s *PostgresTaskStore) FailStale(
	ctx context.Context,
	status domain.TaskStatus,
	cutoff time.Time,
	message string,
) (int, error) {
	var column string
	switch status {
	case domain.TaskStatusPending:
		column = "created_at"
	case domain.TaskStatusProcessing:
		column = "started_at"
	default:
		return 0, fmt.Errorf("%w: cannot reap %s tasks", domain.ErrInvalidTransition, status)
	}

	query := `
		UPDATE generation_tasks
		SET status = 'failed', error_message = $2, completed_at = $3, updated_at = $3
		WHERE status = $4 AND ` + column + ` < $1
	`
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC(), message, s.now(), string(status))
	if err != nil {
		return 0, fmt.Errorf("failed to reap %s tasks: %w", status, MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// checkTransition turns a zero-row conditional UPDATE into the right error.
func (s *PostgresTaskStore) checkTransition(ctx context.Context, res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return s.conflictOrNotFound(ctx, id)
	}
	return nil
}

// conflictOrNotFound distinguishes a missing task from one whose status moved on.
func (s *PostgresTaskStore) conflictOrNotFound(ctx context.Context, id uuid.UUID) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM generation_tasks WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrTaskNotFound
		}
		return fmt.Errorf("failed to read task status: %w", MapError(err))
	}
	logger.FromContextOrDefault(ctx, s.logger).Debug("conditional task update lost",
		slog.String("task_id", id.String()),
		slog.String("current_status", status))
	return fmt.Errorf("%w: task is %s", store.ErrStatusConflict, status)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task        domain.Task
		kind        string
		status      string
		input       []byte
		result      []byte
		errMessage  sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&kind,
		&status,
		&task.Priority,
		&input,
		&result,
		&errMessage,
		&task.CreditsRequired,
		&task.CreatedAt,
		&startedAt,
		&completedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Kind = domain.TaskKind(kind)
	task.Status = domain.TaskStatus(status)
	if err := json.Unmarshal(input, &task.Input); err != nil {
		return nil, fmt.Errorf("failed to decode task input: %w", err)
	}
	if len(result) > 0 {
		var r domain.Result
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("failed to decode task result: %w", err)
		}
		task.Result = &r
	}
	if errMessage.Valid {
		task.ErrorMessage = &errMessage.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		task.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		task.CompletedAt = &t
	}
	return &task, nil
}
