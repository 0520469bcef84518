package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

// fakeAPI answers the routes taskctl uses with canned bodies.
func fakeAPI(t *testing.T, taskID uuid.UUID, finalEvent string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks/submit", func(w http.ResponseWriter, r *http.Request) {
		var req api.SubmitTaskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Quality == "high" {
			w.WriteHeader(http.StatusPaymentRequired)
			_, _ = w.Write([]byte(`{"error":"Insufficient credits","required":15,"available":10}`))
			return
		}
		assert.Equal(t, "chrome french tips", req.Prompt)
		_, _ = fmt.Fprintf(w, `{"success":true,"taskId":%q,"creditsRequired":%d,"status":"pending"}`, taskID, req.N)
	})
	mux.HandleFunc("POST /api/tasks/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Task cannot be cancelled","currentStatus":"completed"}`))
	})
	mux.HandleFunc("GET /api/credits/balance", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":10,"used":3,"available":7}`))
	})
	mux.HandleFunc("GET /api/tasks/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, taskID.String(), r.URL.Query().Get("taskId"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(w, "data: {\"type\":\"connected\",\"taskId\":%q}\n\n", taskID)
		_, _ = fmt.Fprintf(w, "data: {\"type\":\"task_status\",\"status\":\"processing\",\"message\":\"Generating images\"}\n\n")
		_, _ = fmt.Fprintf(w, "data: %s\n\n", finalEvent)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func execute(srv *httptest.Server, token string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--url", srv.URL, "--token", token}, args...))
	err := cmd.Execute()
	return out.String(), err
}

const completedEvent = `{"type":"task_completed","status":"completed","result":{"images":["data:image/png;base64,AAAA"],"storedUrls":["https://cdn.example.test/ainails/nails_1.png"]}}`

func TestSubmit(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	srv := fakeAPI(t, id, completedEvent)

	out, err := execute(srv, testToken, "submit", "chrome french tips", "-n", "2")
	require.NoError(t, err)

	var resp api.SubmitTaskResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, id, resp.TaskID)
	assert.Equal(t, 2, resp.CreditsRequired)
}

func TestSubmit_Watch(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	srv := fakeAPI(t, id, completedEvent)

	out, err := execute(srv, testToken, "submit", "chrome french tips", "-n", "1", "--watch")
	require.NoError(t, err)
	assert.Contains(t, out, "submitted "+id.String())
	assert.Contains(t, out, "processing: Generating images")
	assert.Contains(t, out, "completed\n  https://cdn.example.test/ainails/nails_1.png")
}

func TestWatch_Failed(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	srv := fakeAPI(t, id, `{"type":"task_failed","status":"failed","error":"Image generation timed out"}`)

	out, err := execute(srv, testToken, "watch", id.String())
	assert.ErrorContains(t, err, "failed")
	assert.Contains(t, out, "failed: Image generation timed out")
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	srv := fakeAPI(t, uuid.New(), completedEvent)

	tests := []struct {
		name  string
		token string
		args  []string
		want  string
	}{
		{"no token", "", []string{"balance"}, "no token"},
		{"bad token", "wrong", []string{"balance"}, "unauthorized"},
		{"insufficient credits", testToken, []string{"submit", "x", "--quality", "high"}, "insufficient credits: 15 required, 10 available"},
		{"cancel refused", testToken, []string{"cancel", uuid.NewString()}, "task is completed"},
		{"bad task id", testToken, []string{"watch", "nope"}, `invalid task id "nope"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := execute(srv, tc.token, tc.args...)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestBalance(t *testing.T) {
	t.Parallel()

	out, err := execute(fakeAPI(t, uuid.New(), completedEvent), testToken, "balance")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":10,"used":3,"available":7}`, out)
}
