package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/nailart-api/internal/store"
)

// SQLSTATE codes the stores react to.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeNotNullViolation     = "23502"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func pgCode(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func hasCode(err error, code string) bool {
	pgErr, ok := pgCode(err)
	return ok && pgErr.Code == code
}

// MapError translates driver errors into store sentinels, keeping the
// original error in the chain. Unrecognized errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	pgErr, ok := pgCode(err)
	if !ok {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: foreign key %s: %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
	case codeCheckViolation:
		// generation_tasks_status_check rejects statuses outside the state machine.
		return fmt.Errorf("%w: check %s: %v", store.ErrInvalidEntity, pgErr.ConstraintName, err)
	case codeNotNullViolation:
		return fmt.Errorf("%w: column %s is required: %v", store.ErrInvalidEntity, pgErr.ColumnName, err)
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %v", store.ErrTransactionFailed, err)
	}
	return err
}

// IsUniqueViolation reports a duplicate key, e.g. a second charge row for
// the same task.
func IsUniqueViolation(err error) bool { return hasCode(err, codeUniqueViolation) }

// IsForeignKeyViolation reports a reference to a missing row, e.g. a charge
// for an owner without a credit account.
func IsForeignKeyViolation(err error) bool { return hasCode(err, codeForeignKeyViolation) }

func IsCheckConstraintViolation(err error) bool { return hasCode(err, codeCheckViolation) }

func IsNotNullViolation(err error) bool { return hasCode(err, codeNotNullViolation) }

// IsNotFoundError covers both sql.ErrNoRows and store.ErrNotFound chains.
func IsNotFoundError(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, store.ErrNotFound)
}
