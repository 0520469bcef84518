package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/nailart-api/internal/blob"
)

// MockBlobStore implements blob.Store in memory. The first Failures uploads
// fail with blob.ErrUploadFailed.
type MockBlobStore struct {
	BaseURL  string
	Failures int

	mu    sync.Mutex
	calls int
	keys  []string
}

var _ blob.Store = (*MockBlobStore)(nil)

// Upload implements blob.Store.
func (s *MockBlobStore) Upload(_ context.Context, data []byte, _ string, folder, key string) (blob.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.Failures > 0 {
		s.Failures--
		return blob.Object{}, blob.ErrUploadFailed
	}
	s.keys = append(s.keys, key)

	base := s.BaseURL
	if base == "" {
		base = "https://cdn.example.test"
	}
	return blob.Object{
		URL:      base + "/" + folder + "/" + key,
		PublicID: folder + "/" + key,
		Width:    1024,
		Height:   1024,
		Bytes:    len(data),
	}, nil
}

// CallCount is the number of Upload calls, failed ones included.
func (s *MockBlobStore) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Keys lists the keys of successful uploads in order.
func (s *MockBlobStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}
