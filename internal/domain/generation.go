package domain

import (
	"fmt"
	"strings"
)

// Quality is the provider quality tier. It drives both cost and priority.
type Quality string

// Accepted quality tiers.
const (
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ImageSize is one of the fixed output resolutions.
type ImageSize string

// Accepted output sizes.
const (
	ImageSizeSquare    ImageSize = "1024x1024"
	ImageSizePortrait  ImageSize = "1024x1536"
	ImageSizeLandscape ImageSize = "1536x1024"
)

// OutputFormat is the encoded image format requested from the provider.
type OutputFormat string

// Accepted output formats.
const (
	OutputFormatPNG  OutputFormat = "png"
	OutputFormatJPEG OutputFormat = "jpeg"
)

// SkinTone selects the hand complexion described in the prompt.
type SkinTone string

// Known skin tones. Anything else is treated as SkinToneMedium.
const (
	SkinToneFair   SkinTone = "fair"
	SkinToneLight  SkinTone = "light"
	SkinToneMedium SkinTone = "medium"
	SkinToneOlive  SkinTone = "olive"
	SkinToneBrown  SkinTone = "brown"
	SkinToneDark   SkinTone = "dark"
)

// Limits on images per request.
const (
	MinImageCount = 1
	MaxImageCount = 4
)

// Priority values; lower is claimed first.
const (
	PriorityHigh   = 2
	PriorityMedium = 3
)

var skinToneDescriptions = map[SkinTone]string{
	SkinToneFair:   "very fair, pale, porcelain skin tone with pink undertones, light complexion",
	SkinToneLight:  "light, peachy-beige skin tone with warm undertones, bright complexion",
	SkinToneMedium: "medium, golden-beige skin tone with neutral undertones, natural complexion",
	SkinToneOlive:  "olive, warm golden-brown skin tone with yellow-green undertones, Mediterranean complexion",
	SkinToneBrown:  "rich brown, caramel skin tone with warm golden undertones, warm complexion",
	SkinToneDark:   "deep, rich brown skin tone with warm undertones, deep complexion",
}

const (
	promptPrefix = "Professional close-up photography of a manicure on a hand with "
	promptSuffix = "High-resolution, beauty salon quality, professionally lit, detailed nail structure, " +
		"accurate skin tone representation, on a clean neutral background, focused on nails and hand"
	promptClosing = ". Ensure accurate skin tone representation matching the specified complexion."
)

// Valid reports whether q is an accepted quality tier.
func (q Quality) Valid() bool {
	return q == QualityMedium || q == QualityHigh
}

// CostPerImage returns the credits charged per generated image.
func (q Quality) CostPerImage() int {
	if q == QualityHigh {
		return 5
	}
	return 1
}

// Priority returns the claim priority for tasks of this quality.
func (q Quality) Priority() int {
	if q == QualityHigh {
		return PriorityHigh
	}
	return PriorityMedium
}

// Valid reports whether s is an accepted output size.
func (s ImageSize) Valid() bool {
	switch s {
	case ImageSizeSquare, ImageSizePortrait, ImageSizeLandscape:
		return true
	default:
		return false
	}
}

// Valid reports whether f is an accepted output format.
func (f OutputFormat) Valid() bool {
	return f == OutputFormatPNG || f == OutputFormatJPEG
}

// MIMEType returns the media type used for inline data URIs.
func (f OutputFormat) MIMEType() string {
	if f == OutputFormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// NormalizeSkinTone maps arbitrary input onto a known skin tone.
// Unknown or empty values fall back to SkinToneMedium.
func NormalizeSkinTone(raw string) SkinTone {
	tone := SkinTone(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := skinToneDescriptions[tone]; ok {
		return tone
	}
	return SkinToneMedium
}

// Description returns the prompt phrase for the skin tone.
func (s SkinTone) Description() string {
	if desc, ok := skinToneDescriptions[s]; ok {
		return desc
	}
	return skinToneDescriptions[SkinToneMedium]
}

// GenerationInput holds the immutable parameters of a generation request.
type GenerationInput struct {
	Prompt       string       `json:"prompt"`
	Size         ImageSize    `json:"size"`
	Quality      Quality      `json:"quality"`
	Count        int          `json:"n"`
	OutputFormat OutputFormat `json:"output_format"`
	SkinTone     SkinTone     `json:"skinTone"`
}

// GenerationRequest is the raw, unvalidated form of a generation request.
// Empty fields take their defaults during normalization.
type GenerationRequest struct {
	Prompt       string
	Size         string
	Quality      string
	Count        int
	OutputFormat string
	SkinTone     string
}

// NormalizeRequest applies defaults, canonicalizes enumerations and
// validates the result.
func NormalizeRequest(req GenerationRequest) (GenerationInput, error) {
	input := GenerationInput{
		Prompt:       strings.TrimSpace(req.Prompt),
		Size:         ImageSize(strings.TrimSpace(req.Size)),
		Quality:      Quality(strings.ToLower(strings.TrimSpace(req.Quality))),
		Count:        req.Count,
		OutputFormat: OutputFormat(strings.ToLower(strings.TrimSpace(req.OutputFormat))),
		SkinTone:     NormalizeSkinTone(req.SkinTone),
	}
	if input.Size == "" {
		input.Size = ImageSizeSquare
	}
	if input.Quality == "" {
		input.Quality = QualityHigh
	}
	if input.Count == 0 {
		input.Count = MinImageCount
	}
	if input.OutputFormat == "" {
		input.OutputFormat = OutputFormatPNG
	}

	if err := input.Validate(); err != nil {
		return GenerationInput{}, err
	}
	return input, nil
}

// Validate checks the input against the accepted value sets.
func (in GenerationInput) Validate() error {
	if in.Prompt == "" {
		return fmt.Errorf("%w: %w", NewValidationError("prompt", "prompt is required"), ErrEmptyPrompt)
	}
	if !in.Size.Valid() {
		return NewValidationError("size", "size must be one of 1024x1024, 1024x1536, 1536x1024")
	}
	if !in.Quality.Valid() {
		return NewValidationError("quality", "quality must be medium or high")
	}
	if in.Count < MinImageCount || in.Count > MaxImageCount {
		return NewValidationError("n", fmt.Sprintf("n must be between %d and %d", MinImageCount, MaxImageCount))
	}
	if !in.OutputFormat.Valid() {
		return NewValidationError("output_format", "output_format must be png or jpeg")
	}
	return nil
}

// CreditsRequired is the total charge for the request.
func (in GenerationInput) CreditsRequired() int {
	return in.Quality.CostPerImage() * in.Count
}

// EnhancedPrompt wraps the user's prompt with the fixed photographic framing
// and the skin tone description sent to the image provider.
func (in GenerationInput) EnhancedPrompt() string {
	var b strings.Builder
	b.WriteString(promptPrefix)
	b.WriteString(in.SkinTone.Description())
	b.WriteString(", showcasing: ")
	b.WriteString(in.Prompt)
	b.WriteString(". ")
	b.WriteString(promptSuffix)
	b.WriteString(promptClosing)
	return b.String()
}
