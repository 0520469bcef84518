// Package generation defines the boundary between the task worker and the
// external image generation services. Adapters live under internal/platform
// (azure, gemini); the worker only sees the Provider interface and the
// sentinel errors declared here.
package generation
