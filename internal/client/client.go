package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api"
	"github.com/phrazzld/nailart-api/internal/domain"
)

// DefaultBalanceTTL is how long a fetched balance is reused.
const DefaultBalanceTTL = 30 * time.Second

// Balance is the owner's credit balance.
type Balance = api.BalanceResponse

// Client talks to the task API on behalf of one bearer token.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
	balance *Cache[Balance]

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The client must not set
// an overall timeout if status streams are used.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.logger = log }
}

// WithBalanceTTL changes how long balances are cached.
func WithBalanceTTL(ttl time.Duration) Option {
	return func(c *Client) { c.balance = NewCache[Balance](ttl) }
}

// New creates a Client for the API at baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  slog.Default(),
		balance: NewCache[Balance](DefaultBalanceTTL),
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "task_client"))
	return c
}

// SetToken swaps the bearer token. Cached data belongs to the old identity
// and is dropped.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.balance.Invalidate()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Submit creates a generation task.
func (c *Client) Submit(ctx context.Context, req api.SubmitTaskRequest) (*api.SubmitTaskResponse, error) {
	var resp api.SubmitTaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks/submit", req, &resp); err != nil {
		return nil, err
	}
	c.balance.Invalidate()
	return &resp, nil
}

// Cancel cancels a pending or processing task.
func (c *Client) Cancel(ctx context.Context, taskID uuid.UUID) error {
	var resp api.CancelTaskResponse
	if err := c.do(ctx, http.MethodPost, "/api/tasks/cancel",
		api.CancelTaskRequest{TaskID: taskID.String()}, &resp); err != nil {
		return err
	}
	c.balance.Invalidate()
	return nil
}

// History lists the owner's recent tasks, newest first.
func (c *Client) History(ctx context.Context) ([]*domain.Task, error) {
	var resp api.TaskHistoryResponse
	if err := c.do(ctx, http.MethodGet, "/api/tasks/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// Task fetches one task.
func (c *Client) Task(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	var resp api.TaskResponse
	if err := c.do(ctx, http.MethodGet, "/api/tasks/"+taskID.String(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Task, nil
}

// Balance returns the credit balance, served from cache when fresh.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	return c.balance.Get(ctx, func(ctx context.Context) (Balance, error) {
		var resp Balance
		err := c.do(ctx, http.MethodGet, "/api/credits/balance", nil, &resp)
		return resp, err
	})
}

// InvalidateBalance forces the next Balance call to hit the server.
func (c *Client) InvalidateBalance() {
	c.balance.Invalidate()
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// errorBody is the union of the server's error shapes.
type errorBody struct {
	Error         string            `json:"error"`
	Message       string            `json:"message"`
	TraceID       string            `json:"trace_id"`
	Required      int               `json:"required"`
	Available     int               `json:"available"`
	CurrentStatus domain.TaskStatus `json:"currentStatus"`
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body errorBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		}
		apiErr.TraceID = body.TraceID
		apiErr.Required = body.Required
		apiErr.Available = body.Available
		apiErr.CurrentStatus = body.CurrentStatus
	}
	return apiErr
}

func statusPath(taskID uuid.UUID) string {
	return "/api/tasks/status?" + url.Values{"taskId": {taskID.String()}}.Encode()
}
