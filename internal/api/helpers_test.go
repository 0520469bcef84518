package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/credits"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/notify"
	"github.com/phrazzld/nailart-api/internal/platform/memory"
	"github.com/phrazzld/nailart-api/internal/service"
	"github.com/phrazzld/nailart-api/internal/task"
	"github.com/stretchr/testify/require"
)

const testUserHeader = "X-Test-User"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv serves the handlers over in-memory stores. Requests name their
// owner in testUserHeader in place of a bearer token.
type testEnv struct {
	tasks     *memory.TaskStore
	ledger    *credits.LedgerService
	processor TaskProcessor
	owner     uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		tasks:  memory.NewTaskStore(),
		ledger: credits.NewLedgerService(memory.NewCreditStore(), credits.DefaultInitialGrant, discardLogger()),
		owner:  uuid.New(),
	}
}

func (e *testEnv) router(t *testing.T) http.Handler {
	t.Helper()
	svc, err := service.NewTaskService(e.tasks, e.ledger, nil, 0, discardLogger())
	require.NoError(t, err)

	reaper := task.NewReaper(e.tasks, 0, 0, discardLogger())
	notifier := notify.NewNotifier(e.tasks, reaper, notify.Config{
		PollInterval:       5 * time.Millisecond,
		MaxLifetime:        2 * time.Second,
		TerminalCloseDelay: time.Millisecond,
		SettleCloseDelay:   time.Millisecond,
	}, discardLogger())

	tasks := NewTaskHandler(svc, discardLogger())
	streams := NewStreamHandler(notifier, discardLogger())
	admin := NewAdminHandler(reaper, e.processor, discardLogger())

	r := chi.NewRouter()
	r.Get("/health", Health)
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(testIdentity)
			r.Post("/tasks/submit", tasks.Submit)
			r.Post("/tasks/cancel", tasks.Cancel)
			r.Get("/tasks/history", tasks.History)
			r.Get("/tasks/status", streams.Status)
			r.Get("/tasks/{id}", tasks.Get)
			r.Get("/tasks/{id}/events", streams.Events)
			r.Get("/credits/balance", tasks.Balance)
		})
		r.Post("/tasks/cleanup", admin.Cleanup)
		r.Get("/tasks/cleanup", admin.CleanupStatus)
		r.Post("/tasks/process", admin.Process)
		r.Get("/tasks/process", admin.ProcessStatus)
	})
	return r
}

func testIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := uuid.Parse(r.Header.Get(testUserHeader)); err == nil {
			r = r.WithContext(shared.WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (e *testEnv) do(t *testing.T, h http.Handler, method, target, body string, owner uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if owner != uuid.Nil {
		req.Header.Set(testUserHeader, owner.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// addTask stores a pending task for owner created at createdAt.
func (e *testEnv) addTask(t *testing.T, owner uuid.UUID, createdAt time.Time) *domain.Task {
	t.Helper()
	input, err := domain.NormalizeRequest(domain.GenerationRequest{Prompt: "rose gold marble", Quality: "medium"})
	require.NoError(t, err)
	tk, err := domain.NewTask(owner, input)
	require.NoError(t, err)
	tk.CreatedAt = createdAt.UTC()
	tk.UpdatedAt = tk.CreatedAt
	require.NoError(t, e.tasks.Create(context.Background(), tk))
	return tk
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// sseEvents parses the data frames of an event stream body.
func sseEvents(t *testing.T, body string) []notify.Event {
	t.Helper()
	var events []notify.Event
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev notify.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	return events
}
