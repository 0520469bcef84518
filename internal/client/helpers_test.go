package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api"
	"github.com/phrazzld/nailart-api/internal/api/middleware"
	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/notify"
	"github.com/phrazzld/nailart-api/internal/platform/memory"
	"github.com/phrazzld/nailart-api/internal/service"
	"github.com/phrazzld/nailart-api/internal/service/auth"
	"github.com/phrazzld/nailart-api/internal/task"
	"github.com/stretchr/testify/require"
)

const testSecret = "client-test-secret-that-is-long-enough"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServer runs the real handlers over in-memory stores.
type testServer struct {
	*httptest.Server
	tasks *memory.TaskStore
	jwt   auth.JWTService

	mu   sync.Mutex
	hits map[string]int
	// failStreams answers the status stream with a 502.
	failStreams bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{JWTSecret: testSecret})
	require.NoError(t, err)

	s := &testServer{tasks: memory.NewTaskStore(), jwt: jwtService, hits: map[string]int{}}
	ledger := credits.NewLedgerService(memory.NewCreditStore(), credits.DefaultInitialGrant, discardLogger())
	svc, err := service.NewTaskService(s.tasks, ledger, nil, 0, discardLogger())
	require.NoError(t, err)
	reaper := task.NewReaper(s.tasks, 0, 0, discardLogger())
	notifier := notify.NewNotifier(s.tasks, reaper, notify.Config{
		PollInterval:       5 * time.Millisecond,
		MaxLifetime:        5 * time.Second,
		TerminalCloseDelay: time.Millisecond,
		SettleCloseDelay:   time.Millisecond,
	}, discardLogger())

	tasks := api.NewTaskHandler(svc, discardLogger())
	streams := api.NewStreamHandler(notifier, discardLogger())

	r := chi.NewRouter()
	r.Use(s.record)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(jwtService, discardLogger()).Authenticate)
		r.Post("/tasks/submit", tasks.Submit)
		r.Post("/tasks/cancel", tasks.Cancel)
		r.Get("/tasks/history", tasks.History)
		r.Get("/tasks/status", streams.Status)
		r.Get("/tasks/{id}", tasks.Get)
		r.Get("/credits/balance", tasks.Balance)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func (s *testServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		fail := s.failStreams && strings.HasSuffix(r.URL.Path, "/status")
		s.mu.Unlock()
		if fail {
			http.Error(w, `{"error":"bad gateway"}`, http.StatusBadGateway)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *testServer) failStatusStreams() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStreams = true
}

func (s *testServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testServer) client(t *testing.T) (*Client, uuid.UUID) {
	t.Helper()
	owner := uuid.New()
	token, err := s.jwt.GenerateToken(context.Background(), owner)
	require.NoError(t, err)
	return New(s.URL, token, WithLogger(discardLogger())), owner
}

// finishLater moves a pending task to completed after delay.
func (s *testServer) finishLater(t *testing.T, id uuid.UUID, delay time.Duration) {
	t.Helper()
	go func() {
		time.Sleep(delay)
		ctx := context.Background()
		if _, err := s.tasks.Claim(ctx, id); err != nil {
			return
		}
		time.Sleep(delay)
		result := domain.NewResult("rose gold marble", domain.OutputFormatPNG, []domain.GeneratedImage{{Data: []byte("img")}}, time.Now())
		_ = s.tasks.Complete(ctx, id, result)
	}()
}
