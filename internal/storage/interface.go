package storage

import (
	"context"
	"io"
)

// Storage is the object store holding archived run reports.
type Storage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}
