// Package blob defines durable image storage for generated results.
package blob

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrUploadFailed is returned when an object could not be stored.
var ErrUploadFailed = errors.New("blob upload failed")

// DefaultFolder is the folder generated images are stored under.
const DefaultFolder = "ainails"

// Object describes a stored image.
type Object struct {
	URL      string
	PublicID string
	Width    int
	Height   int
	Bytes    int
}

// Store uploads images. Uploading to an existing key replaces the object,
// so retrying an upload with the same key is safe.
type Store interface {
	Upload(ctx context.Context, data []byte, mimeType, folder, key string) (Object, error)
}

// ImageKey is the storage key for the n-th (1-based) image of a task.
func ImageKey(ownerID, taskID uuid.UUID, n int) string {
	return fmt.Sprintf("%s/%s_%d", ownerID, taskID, n)
}
