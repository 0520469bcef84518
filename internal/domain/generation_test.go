package domain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRequest_Defaults(t *testing.T) {
	t.Parallel()

	input, err := NormalizeRequest(GenerationRequest{Prompt: "  chrome almond nails  "})
	require.NoError(t, err)

	assert.Equal(t, "chrome almond nails", input.Prompt)
	assert.Equal(t, ImageSizeSquare, input.Size)
	assert.Equal(t, QualityHigh, input.Quality)
	assert.Equal(t, 1, input.Count)
	assert.Equal(t, OutputFormatPNG, input.OutputFormat)
	assert.Equal(t, SkinToneMedium, input.SkinTone)
}

func TestNormalizeRequest_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		req   GenerationRequest
		field string
	}{
		{"empty prompt", GenerationRequest{Prompt: "   "}, "prompt"},
		{"bad size", GenerationRequest{Prompt: "x", Size: "512x512"}, "size"},
		{"bad quality", GenerationRequest{Prompt: "x", Quality: "low"}, "quality"},
		{"too many images", GenerationRequest{Prompt: "x", Count: 5}, "n"},
		{"negative count", GenerationRequest{Prompt: "x", Count: -1}, "n"},
		{"bad format", GenerationRequest{Prompt: "x", OutputFormat: "webp"}, "output_format"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeRequest(tc.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tc.field, vErr.Field)
		})
	}
}

func TestNormalizeSkinTone(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SkinToneOlive, NormalizeSkinTone("Olive"))
	assert.Equal(t, SkinToneDark, NormalizeSkinTone(" dark "))
	assert.Equal(t, SkinToneMedium, NormalizeSkinTone("ultraviolet"))
	assert.Equal(t, SkinToneMedium, NormalizeSkinTone(""))
}

func TestCreditsRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		quality Quality
		count   int
		want    int
	}{
		{QualityMedium, 1, 1},
		{QualityMedium, 4, 4},
		{QualityHigh, 1, 5},
		{QualityHigh, 3, 15},
	}
	for _, tc := range tests {
		in := GenerationInput{Quality: tc.quality, Count: tc.count}
		assert.Equal(t, tc.want, in.CreditsRequired(), "%s x%d", tc.quality, tc.count)
	}
}

func TestEnhancedPrompt(t *testing.T) {
	t.Parallel()

	input, err := NormalizeRequest(GenerationRequest{Prompt: "pastel ombre coffin nails", SkinTone: "fair"})
	require.NoError(t, err)

	prompt := input.EnhancedPrompt()

	assert.True(t, strings.HasPrefix(prompt,
		"Professional close-up photography of a manicure on a hand with very fair, pale, porcelain skin tone"))
	assert.Contains(t, prompt, ", showcasing: pastel ombre coffin nails. High-resolution, beauty salon quality")
	assert.Contains(t, prompt, "focused on nails and hand")
	assert.True(t, strings.HasSuffix(prompt,
		". Ensure accurate skin tone representation matching the specified complexion."))
}
