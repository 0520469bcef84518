package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp      *genai.GenerateImagesResponse
	err       error
	gotModel  string
	gotPrompt string
	gotConfig *genai.GenerateImagesConfig
}

func (f *fakeModels) GenerateImages(
	ctx context.Context,
	model string,
	prompt string,
	cfg *genai.GenerateImagesConfig,
) (*genai.GenerateImagesResponse, error) {
	f.gotModel, f.gotPrompt, f.gotConfig = model, prompt, cfg
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.resp, nil
}

func imageResponse(payloads ...[]byte) *genai.GenerateImagesResponse {
	resp := &genai.GenerateImagesResponse{}
	for _, p := range payloads {
		resp.GeneratedImages = append(resp.GeneratedImages, &genai.GeneratedImage{
			Image: &genai.Image{ImageBytes: p},
		})
	}
	return resp
}

func request(size domain.ImageSize, count int) generation.Request {
	return generation.Request{
		Prompt:       "glossy cat-eye nails",
		Size:         size,
		Quality:      domain.QualityHigh,
		OutputFormat: domain.OutputFormatPNG,
		Count:        count,
	}
}

func TestProvider_Generate(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: imageResponse([]byte("a"), []byte("b"))}
	p := newProvider(models, "imagen-3.0-generate-002", nil)

	images, err := p.Generate(context.Background(), request(domain.ImageSizePortrait, 2))
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, []byte("b"), images[1].Data)
	assert.Equal(t, "image/png", images[0].MIMEType)

	assert.Equal(t, "imagen-3.0-generate-002", models.gotModel)
	assert.Equal(t, "glossy cat-eye nails", models.gotPrompt)
	assert.Equal(t, int32(2), models.gotConfig.NumberOfImages)
	assert.Equal(t, "3:4", models.gotConfig.AspectRatio)
	assert.Equal(t, "image/png", models.gotConfig.OutputMIMEType)
}

func TestProvider_GenerateFailures(t *testing.T) {
	t.Parallel()

	filtered := imageResponse([]byte("a"))
	filtered.GeneratedImages = append(filtered.GeneratedImages, &genai.GeneratedImage{RAIFilteredReason: "unsafe"})

	tests := []struct {
		name    string
		models  *fakeModels
		wantErr error
	}{
		{"api error", &fakeModels{err: errors.New("quota exceeded")}, generation.ErrProviderFailed},
		{"no images", &fakeModels{resp: &genai.GenerateImagesResponse{}}, generation.ErrInvalidResponse},
		{"empty bytes", &fakeModels{resp: imageResponse([]byte("a"), nil)}, generation.ErrInvalidResponse},
		{"filtered", &fakeModels{resp: filtered}, generation.ErrContentBlocked},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := newProvider(tc.models, "imagen", nil)
			_, err := p.Generate(context.Background(), request(domain.ImageSizeSquare, 2))
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestProvider_GenerateDeadline(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	p := newProvider(&fakeModels{resp: imageResponse([]byte("a"))}, "imagen", nil)
	_, err := p.Generate(ctx, request(domain.ImageSizeLandscape, 1))
	assert.ErrorIs(t, err, generation.ErrTimeout)
}

func TestAspectRatio(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1:1", aspectRatio(domain.ImageSizeSquare))
	assert.Equal(t, "3:4", aspectRatio(domain.ImageSizePortrait))
	assert.Equal(t, "4:3", aspectRatio(domain.ImageSizeLandscape))
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewProvider(context.Background(), config.GeminiConfig{ModelName: "imagen"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewProvider(context.Background(), config.GeminiConfig{APIKey: "k"}, nil)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}
