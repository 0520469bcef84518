// Package credits gates generation on the owner's credit balance and records
// the charge once a task's images exist.
package credits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/store"
)

// DefaultInitialGrant is the number of credits a new owner starts with.
const DefaultInitialGrant = 10

// ErrInsufficientCredits is the sentinel behind InsufficientCreditsError.
var ErrInsufficientCredits = errors.New("insufficient credits")

// InsufficientCreditsError reports a request that costs more than the owner has.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// Shortfall is how many more credits the request needs.
func (e *InsufficientCreditsError) Shortfall() int {
	return e.Required - e.Available
}

// Authorization is the outcome of a balance check.
type Authorization struct {
	OK        bool
	Available int
}

// Authorizer is the credit contract used by submission and the worker.
type Authorizer interface {
	// CheckAndReserve reports whether the owner can afford amount. It does not
	// move any credits.
	CheckAndReserve(ctx context.Context, ownerID uuid.UUID, amount int) (Authorization, error)
	// FinalizeConsumption charges amount for taskID. Charging the same task
	// again is a no-op.
	FinalizeConsumption(ctx context.Context, ownerID uuid.UUID, amount int, taskID uuid.UUID) error
	// Balance returns the owner's account, opening it on first use.
	Balance(ctx context.Context, ownerID uuid.UUID) (*store.CreditBalance, error)
}

// LedgerService implements Authorizer on a store.CreditStore.
type LedgerService struct {
	store        store.CreditStore
	initialGrant int
	logger       *slog.Logger
}

var _ Authorizer = (*LedgerService)(nil)

// NewLedgerService creates a LedgerService. New owners receive initialGrant
// credits the first time their balance is read.
func NewLedgerService(creditStore store.CreditStore, initialGrant int, log *slog.Logger) *LedgerService {
	if creditStore == nil {
		panic("credit store cannot be nil")
	}
	if initialGrant < 0 {
		initialGrant = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &LedgerService{
		store:        creditStore,
		initialGrant: initialGrant,
		logger:       log.With(slog.String("component", "credit_ledger")),
	}
}

func (s *LedgerService) Balance(ctx context.Context, ownerID uuid.UUID) (*store.CreditBalance, error) {
	balance, err := s.store.GetOrCreate(ctx, ownerID, s.initialGrant)
	if err != nil {
		return nil, fmt.Errorf("failed to load credit balance: %w", err)
	}
	return balance, nil
}

func (s *LedgerService) CheckAndReserve(ctx context.Context, ownerID uuid.UUID, amount int) (Authorization, error) {
	balance, err := s.Balance(ctx, ownerID)
	if err != nil {
		return Authorization{}, err
	}
	available := balance.Available()
	return Authorization{OK: available >= amount, Available: available}, nil
}

// FinalizeConsumption charges the task's credits. A repeated charge is
// swallowed. A balance that has dropped below the charge since submission is
// returned to the caller, which logs it; the generated images stay delivered.
func (s *LedgerService) FinalizeConsumption(
	ctx context.Context,
	ownerID uuid.UUID,
	amount int,
	taskID uuid.UUID,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("owner_id", ownerID.String()),
		slog.String("task_id", taskID.String()))

	if amount <= 0 {
		return nil
	}

	err := s.store.Consume(ctx, ownerID, amount, taskID, fmt.Sprintf("Image generation (%d credits)", amount))
	switch {
	case err == nil:
		log.Info("credits consumed", slog.Int("amount", amount))
		return nil
	case errors.Is(err, store.ErrAlreadyApplied):
		log.Debug("credits already consumed for task")
		return nil
	case errors.Is(err, store.ErrInsufficientBalance):
		return &InsufficientCreditsError{Required: amount, Available: s.available(ctx, ownerID)}
	default:
		return fmt.Errorf("failed to consume credits: %w", err)
	}
}

func (s *LedgerService) available(ctx context.Context, ownerID uuid.UUID) int {
	balance, err := s.store.GetOrCreate(ctx, ownerID, s.initialGrant)
	if err != nil {
		return 0
	}
	return balance.Available()
}
