package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/store"
)

// PostgresCreditStore implements store.CreditStore on user_credits and
// credit_transactions.
type PostgresCreditStore struct {
	db       *sql.DB
	logger   *slog.Logger
	timeFunc func() time.Time
}

var _ store.CreditStore = (*PostgresCreditStore)(nil)

// NewPostgresCreditStore creates a new PostgresCreditStore.
// It panics if db is nil.
func NewPostgresCreditStore(db *sql.DB, logger *slog.Logger) *PostgresCreditStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCreditStore{
		db:       db,
		logger:   logger.With(slog.String("component", "credit_store")),
		timeFunc: time.Now,
	}
}

// GetOrCreate returns the owner's account, opening it with initialGrant
// credits and a matching grant transaction on first use.
func (s *PostgresCreditStore) GetOrCreate(
	ctx context.Context,
	ownerID uuid.UUID,
	initialGrant int,
) (*store.CreditBalance, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	now := s.timeFunc().UTC()

	var balance store.CreditBalance
	err := store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO user_credits (user_id, total_credits, used_credits, created_at, updated_at)
			VALUES ($1, $2, 0, $3, $3)
			ON CONFLICT (user_id) DO NOTHING
		`, ownerID, initialGrant, now)
		if err != nil {
			return fmt.Errorf("failed to open credit account: %w", MapError(err))
		}

		opened, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if opened == 1 && initialGrant > 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO credit_transactions (id, user_id, type, amount, description, created_at)
				VALUES ($1, $2, 'grant', $3, $4, $5)
			`, uuid.New(), ownerID, initialGrant, "Initial credit grant", now)
			if err != nil {
				return fmt.Errorf("failed to record credit grant: %w", MapError(err))
			}
			log.Info("opened credit account",
				slog.String("owner_id", ownerID.String()),
				slog.Int("initial_grant", initialGrant))
		}

		return tx.QueryRowContext(ctx, `
			SELECT user_id, total_credits, used_credits, updated_at
			FROM user_credits WHERE user_id = $1
		`, ownerID).Scan(&balance.OwnerID, &balance.TotalCredits, &balance.UsedCredits, &balance.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// Consume charges amount credits for taskID. The ledger row's unique task
// index makes the charge happen at most once per task.
func (s *PostgresCreditStore) Consume(
	ctx context.Context,
	ownerID uuid.UUID,
	amount int,
	taskID uuid.UUID,
	description string,
) error {
	if amount <= 0 {
		return fmt.Errorf("%w: charge must be positive", store.ErrInvalidEntity)
	}
	now := s.timeFunc().UTC()

	return store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO credit_transactions (id, user_id, type, amount, description, task_id, created_at)
			VALUES ($1, $2, 'consume', $3, $4, $5, $6)
			ON CONFLICT (task_id) WHERE type = 'consume' DO NOTHING
		`, uuid.New(), ownerID, -amount, description, taskID, now)
		if err != nil {
			if IsForeignKeyViolation(err) {
				return store.ErrCreditAccountNotFound
			}
			return fmt.Errorf("failed to record credit charge: %w", MapError(err))
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if n == 0 {
			return store.ErrAlreadyApplied
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE user_credits
			SET used_credits = used_credits + $2, updated_at = $3
			WHERE user_id = $1 AND total_credits - used_credits >= $2
		`, ownerID, amount, now)
		if err != nil {
			return fmt.Errorf("failed to debit credits: %w", MapError(err))
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if n == 0 {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM user_credits WHERE user_id = $1)`, ownerID).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check credit account: %w", MapError(err))
			}
			if !exists {
				return store.ErrCreditAccountNotFound
			}
			return store.ErrInsufficientBalance
		}
		return nil
	})
}
