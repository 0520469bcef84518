package generation

import (
	"context"

	"github.com/phrazzld/nailart-api/internal/domain"
)

// Request is a single provider call. Prompt is already enhanced.
type Request struct {
	Prompt       string
	Size         domain.ImageSize
	Quality      domain.Quality
	OutputFormat domain.OutputFormat
	Count        int
}

// NewRequest builds the provider request for a task's input.
func NewRequest(in domain.GenerationInput) Request {
	return Request{
		Prompt:       in.EnhancedPrompt(),
		Size:         in.Size,
		Quality:      in.Quality,
		OutputFormat: in.OutputFormat,
		Count:        in.Count,
	}
}

// Image is one generated image.
type Image = domain.GeneratedImage

// Provider generates images from a prompt.
//
// Implementations honor ctx cancellation and wrap failures in the sentinels
// from errors.go. A successful call returns at least one image.
type Provider interface {
	Generate(ctx context.Context, req Request) ([]Image, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) ([]Image, error)

func (f ProviderFunc) Generate(ctx context.Context, req Request) ([]Image, error) {
	return f(ctx, req)
}
