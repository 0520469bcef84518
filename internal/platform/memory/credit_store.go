package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/store"
)

// CreditStore is a mutex-guarded store.CreditStore.
type CreditStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*store.CreditBalance
	charged  map[uuid.UUID]struct{}
	timeFunc func() time.Time
}

var _ store.CreditStore = (*CreditStore)(nil)

// NewCreditStore creates an empty CreditStore.
func NewCreditStore() *CreditStore {
	return &CreditStore{
		accounts: make(map[uuid.UUID]*store.CreditBalance),
		charged:  make(map[uuid.UUID]struct{}),
		timeFunc: time.Now,
	}
}

func (s *CreditStore) GetOrCreate(_ context.Context, ownerID uuid.UUID, initialGrant int) (*store.CreditBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[ownerID]
	if !ok {
		account = &store.CreditBalance{
			OwnerID:      ownerID,
			TotalCredits: initialGrant,
			UpdatedAt:    s.timeFunc().UTC(),
		}
		s.accounts[ownerID] = account
	}
	balance := *account
	return &balance, nil
}

func (s *CreditStore) Consume(_ context.Context, ownerID uuid.UUID, amount int, taskID uuid.UUID, _ string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: charge must be positive", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[ownerID]
	if !ok {
		return store.ErrCreditAccountNotFound
	}
	if _, done := s.charged[taskID]; done {
		return store.ErrAlreadyApplied
	}
	if account.Available() < amount {
		return store.ErrInsufficientBalance
	}
	account.UsedCredits += amount
	account.UpdatedAt = s.timeFunc().UTC()
	s.charged[taskID] = struct{}{}
	return nil
}
