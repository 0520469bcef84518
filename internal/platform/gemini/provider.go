// Package gemini implements generation.Provider on Google's Imagen models
// through the google.golang.org/genai client.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/generation"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"google.golang.org/genai"
)

// imageModels is the slice of genai.Models the provider uses.
type imageModels interface {
	GenerateImages(
		ctx context.Context,
		model string,
		prompt string,
		config *genai.GenerateImagesConfig,
	) (*genai.GenerateImagesResponse, error)
}

// Provider generates images with an Imagen model.
type Provider struct {
	models imageModels
	model  string
	logger *slog.Logger
}

var _ generation.Provider = (*Provider)(nil)

// NewProvider creates a Provider backed by the Gemini API.
func NewProvider(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}
	return newProvider(client.Models, cfg.ModelName, log), nil
}

func newProvider(models imageModels, model string, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		models: models,
		model:  model,
		logger: log.With(slog.String("component", "gemini_provider"), slog.String("model", model)),
	}
}

// aspectRatio maps the fixed output sizes onto Imagen's aspect ratios.
func aspectRatio(size domain.ImageSize) string {
	switch size {
	case domain.ImageSizePortrait:
		return "3:4"
	case domain.ImageSizeLandscape:
		return "4:3"
	default:
		return "1:1"
	}
}

func (p *Provider) Generate(ctx context.Context, req generation.Request) ([]generation.Image, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)
	mimeType := req.OutputFormat.MIMEType()

	resp, err := p.models.GenerateImages(ctx, p.model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   int32(req.Count),
		AspectRatio:      aspectRatio(req.Size),
		OutputMIMEType:   mimeType,
		PersonGeneration: genai.PersonGenerationAllowAdult,
		IncludeRAIReason: true,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", generation.ErrTimeout, err)
		}
		log.Error("imagen request failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %v", generation.ErrProviderFailed, err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, fmt.Errorf("%w: no images returned", generation.ErrInvalidResponse)
	}

	images := make([]generation.Image, 0, len(resp.GeneratedImages))
	for i, generated := range resp.GeneratedImages {
		if generated != nil && generated.RAIFilteredReason != "" {
			log.Warn("imagen filtered an image", slog.String("reason", generated.RAIFilteredReason))
			return nil, fmt.Errorf("%w: image %d", generation.ErrContentBlocked, i+1)
		}
		if generated == nil || generated.Image == nil || len(generated.Image.ImageBytes) == 0 {
			return nil, fmt.Errorf("%w: image %d missing data", generation.ErrInvalidResponse, i+1)
		}
		imageType := generated.Image.MIMEType
		if imageType == "" {
			imageType = mimeType
		}
		images = append(images, generation.Image{Data: generated.Image.ImageBytes, MIMEType: imageType})
	}
	return images, nil
}
