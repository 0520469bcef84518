// Package azure implements generation.Provider against an Azure OpenAI
// image deployment (gpt-image-1) through its REST images API.
package azure

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/generation"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
)

// maxErrorBody caps how much of a failed response is read for logging.
const maxErrorBody = 4 << 10

// Provider calls the images/generations endpoint of one deployment.
type Provider struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ generation.Provider = (*Provider)(nil)

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// NewProvider creates a Provider from configuration. The request deadline
// comes from the caller's context, so the default client has no timeout.
func NewProvider(cfg config.AzureConfig, log *slog.Logger, opts ...Option) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: azure endpoint cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: azure api key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Deployment == "" || cfg.APIVersion == "" {
		return nil, fmt.Errorf("%w: azure deployment and api version are required", generation.ErrInvalidConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Provider{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		deployment: cfg.Deployment,
		apiVersion: cfg.APIVersion,
		httpClient: &http.Client{},
		logger:     log.With(slog.String("component", "azure_provider")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type imagesRequest struct {
	Prompt       string `json:"prompt"`
	Size         string `json:"size"`
	Quality      string `json:"quality"`
	OutputFormat string `json:"output_format"`
	N            int    `json:"n"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

func (p *Provider) url() string {
	return fmt.Sprintf("%s/openai/deployments/%s/images/generations?api-version=%s",
		p.endpoint, url.PathEscape(p.deployment), url.QueryEscape(p.apiVersion))
}

// Generate requests req.Count images and decodes every one of them. A
// missing or undecodable image fails the whole call.
func (p *Provider) Generate(ctx context.Context, req generation.Request) ([]generation.Image, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)

	body, err := json.Marshal(imagesRequest{
		Prompt:       req.Prompt,
		Size:         string(req.Size),
		Quality:      string(req.Quality),
		OutputFormat: string(req.OutputFormat),
		N:            req.Count,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", generation.ErrProviderFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", generation.ErrProviderFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", generation.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", generation.ErrProviderFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		log.Error("azure images request rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(detail)))
		return nil, fmt.Errorf("%w: status %d", generation.ErrProviderFailed, resp.StatusCode)
	}

	var payload imagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: reading response: %v", generation.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("%w: no images returned", generation.ErrInvalidResponse)
	}

	mimeType := req.OutputFormat.MIMEType()
	images := make([]generation.Image, 0, len(payload.Data))
	for i, item := range payload.Data {
		if item.B64JSON == "" {
			return nil, fmt.Errorf("%w: image %d missing data", generation.ErrInvalidResponse, i+1)
		}
		data, err := base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %v", generation.ErrInvalidResponse, i+1, err)
		}
		images = append(images, generation.Image{Data: data, MIMEType: mimeType})
	}

	log.Debug("azure images generated", slog.Int("count", len(images)))
	return images, nil
}
