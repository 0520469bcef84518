package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// StoredImage describes one image copied to durable blob storage.
type StoredImage struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Bytes    int    `json:"bytes"`
}

// GeneratedImage is raw image bytes as returned by a provider. An empty
// MIMEType means the task's requested output format.
type GeneratedImage struct {
	Data     []byte
	MIMEType string
}

// Result is the output of a completed generation task.
// Images hold inline data URIs written at completion; StoredURLs and
// StoredImages are attached once by the post-completion upload.
type Result struct {
	Images        []string      `json:"images"`
	GeneratedAt   time.Time     `json:"generatedAt"`
	Prompt        string        `json:"prompt"`
	UploadPending bool          `json:"uploadPending"`
	StoredURLs    []string      `json:"storedUrls,omitempty"`
	StoredImages  []StoredImage `json:"storedImages,omitempty"`
}

// NewResult builds the completion result for freshly generated images. Each
// data URI carries the media type the provider reported for that image.
func NewResult(prompt string, format OutputFormat, images []GeneratedImage, generatedAt time.Time) *Result {
	uris := make([]string, 0, len(images))
	for _, img := range images {
		mimeType := img.MIMEType
		if mimeType == "" {
			mimeType = format.MIMEType()
		}
		uris = append(uris, EncodeDataURI(mimeType, img.Data))
	}
	return &Result{
		Images:        uris,
		GeneratedAt:   generatedAt.UTC(),
		Prompt:        prompt,
		UploadPending: true,
	}
}

// WithStoredImages returns a copy of r carrying the durable copies and with
// the upload marked finished. The inline images are left untouched.
func (r Result) WithStoredImages(stored []StoredImage) *Result {
	out := r
	out.Images = append([]string(nil), r.Images...)
	out.StoredImages = append([]StoredImage(nil), stored...)
	out.StoredURLs = make([]string, 0, len(stored))
	for _, s := range stored {
		out.StoredURLs = append(out.StoredURLs, s.URL)
	}
	out.UploadPending = false
	return &out
}

// EncodeDataURI renders raw image bytes as a base64 data URI.
func EncodeDataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI extracts the media type and raw bytes from a base64 data URI.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURI
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok || mimeType == "" {
		return "", nil, ErrInvalidDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return "", nil, ErrInvalidDataURI
	}
	return mimeType, data, nil
}
