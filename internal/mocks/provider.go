package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/nailart-api/internal/generation"
)

// MockProvider implements generation.Provider for testing.
type MockProvider struct {
	// GenerateFn overrides the default behavior when set.
	GenerateFn func(ctx context.Context, req generation.Request) ([]generation.Image, error)

	// Images is returned when GenerateFn is nil and Err is nil. When empty,
	// one placeholder image per requested count is produced.
	Images []generation.Image
	Err    error

	mu       sync.Mutex
	requests []generation.Request
}

var _ generation.Provider = (*MockProvider)(nil)

// NewMockProviderWithImages returns a provider that succeeds with
// placeholder PNG payloads.
func NewMockProviderWithImages() *MockProvider {
	return &MockProvider{}
}

// NewMockProviderThatFails returns a provider that always fails with err.
func NewMockProviderThatFails(err error) *MockProvider {
	return &MockProvider{Err: err}
}

// Generate implements generation.Provider.
func (m *MockProvider) Generate(ctx context.Context, req generation.Request) ([]generation.Image, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(m.Images) > 0 {
		return m.Images, nil
	}
	images := make([]generation.Image, req.Count)
	for i := range images {
		images[i] = generation.Image{Data: []byte{0x89, 'P', 'N', 'G', byte(i)}, MIMEType: "image/png"}
	}
	return images, nil
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []generation.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]generation.Request(nil), m.requests...)
}

// CallCount is the number of Generate calls.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
