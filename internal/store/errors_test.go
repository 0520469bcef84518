package store

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(ErrTaskNotFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("lookup: %w", ErrCreditAccountNotFound)))
	assert.False(t, IsNotFoundError(ErrStatusConflict))
	assert.False(t, IsNotFoundError(nil))
}

func TestCreditBalance_Available(t *testing.T) {
	t.Parallel()

	b := CreditBalance{OwnerID: uuid.New(), TotalCredits: 10, UsedCredits: 6}
	assert.Equal(t, 4, b.Available())
}
