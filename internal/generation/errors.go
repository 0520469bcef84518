package generation

import (
	"context"
	"errors"
)

// Common errors returned by providers.
var (
	// ErrProviderFailed is returned when the provider rejects or fails a request.
	ErrProviderFailed = errors.New("image generation failed")

	// ErrTimeout is returned when the provider call exceeds its deadline.
	ErrTimeout = errors.New("image generation timed out")

	// ErrInvalidResponse is returned when the provider answers without usable
	// image data for every requested image.
	ErrInvalidResponse = errors.New("invalid response from image provider")

	// ErrContentBlocked is returned when the provider's safety filter drops the prompt.
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrInvalidConfig is returned when a provider is constructed with bad settings.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)

// Messages stored on failed tasks. Raw provider text never reaches the client.
const (
	MessageTimeout         = "AI service request timed out"
	MessageFailed          = "AI service request failed"
	MessageInvalidResponse = "Invalid AI response format"
)

// ClientMessage maps a provider error to the message stored on the task.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return MessageTimeout
	case errors.Is(err, ErrInvalidResponse):
		return MessageInvalidResponse
	default:
		return MessageFailed
	}
}
