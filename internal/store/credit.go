package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreditBalance is an owner's credit account.
type CreditBalance struct {
	OwnerID      uuid.UUID `json:"user_id"`
	TotalCredits int       `json:"total_credits"`
	UsedCredits  int       `json:"used_credits"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Available returns the unspent credits.
func (b CreditBalance) Available() int {
	return b.TotalCredits - b.UsedCredits
}

// CreditStore defines persistence for credit accounts and charges.
type CreditStore interface {
	// GetOrCreate returns the owner's account, opening it with the given
	// grant when it does not exist yet.
	GetOrCreate(ctx context.Context, ownerID uuid.UUID, initialGrant int) (*CreditBalance, error)

	// Consume charges amount credits to the owner for a task. A second charge
	// for the same task returns ErrAlreadyApplied and changes nothing.
	Consume(ctx context.Context, ownerID uuid.UUID, amount int, taskID uuid.UUID, description string) error
}
