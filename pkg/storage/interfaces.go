package storage

import (
	"context"
	"errors"
	"io"
)

var ErrInvalidKey = errors.New("invalid storage key")

// Location tells the HTTP layer how to hand out stored bytes: either a
// file on local disk or a URL the client is redirected to.
type Location struct {
	FilePath string
	URL      string
}

type Backend interface {
	// Tag is recorded on every upload and sent to the renderer as source_type.
	Tag() string
	Upload(ctx context.Context, key string, src io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	Locate(ctx context.Context, key string) (*Location, error)
}
