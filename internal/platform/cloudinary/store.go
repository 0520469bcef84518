// Package cloudinary implements blob.Store on Cloudinary's upload API.
package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/phrazzld/nailart-api/internal/blob"
	"github.com/phrazzld/nailart-api/internal/config"
	"github.com/phrazzld/nailart-api/internal/domain"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
)

// ErrNotConfigured is returned by NewStore when no cloud name is set.
var ErrNotConfigured = errors.New("cloudinary is not configured")

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// Store uploads images to a Cloudinary cloud.
type Store struct {
	upload uploadAPI
	logger *slog.Logger
}

var _ blob.Store = (*Store)(nil)

// NewStore creates a Store from configuration.
func NewStore(cfg config.BlobConfig, log *slog.Logger) (*Store, error) {
	if cfg.CloudName == "" {
		return nil, ErrNotConfigured
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloudinary client: %w", err)
	}
	return newStore(&cld.Upload, log), nil
}

func newStore(upload uploadAPI, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{upload: upload, logger: log.With(slog.String("component", "cloudinary_store"))}
}

// Upload stores data under folder/key, overwriting any previous object.
func (s *Store) Upload(ctx context.Context, data []byte, mimeType, folder, key string) (blob.Object, error) {
	if len(data) == 0 {
		return blob.Object{}, fmt.Errorf("%w: empty image", blob.ErrUploadFailed)
	}

	resp, err := s.upload.Upload(ctx, domain.EncodeDataURI(mimeType, data), uploader.UploadParams{
		Folder:       folder,
		PublicID:     key,
		Overwrite:    api.Bool(true),
		ResourceType: "image",
	})
	if err != nil {
		return blob.Object{}, fmt.Errorf("%w: %v", blob.ErrUploadFailed, err)
	}
	if resp == nil {
		return blob.Object{}, fmt.Errorf("%w: empty response", blob.ErrUploadFailed)
	}
	if resp.Error.Message != "" {
		return blob.Object{}, fmt.Errorf("%w: %s", blob.ErrUploadFailed, resp.Error.Message)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("image uploaded",
		slog.String("public_id", resp.PublicID),
		slog.Int("bytes", resp.Bytes))

	return blob.Object{
		URL:      resp.SecureURL,
		PublicID: resp.PublicID,
		Width:    resp.Width,
		Height:   resp.Height,
		Bytes:    resp.Bytes,
	}, nil
}
