package storage

import (
	"context"
	"io"
	"strings"
	"time"
)

type Uploader interface {
	Upload(ctx context.Context, objectName string, contentType string, r io.Reader) (storedPath string, err error)
}

type Signer interface {
	SignedGetURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
}

type Downloader interface {
	Download(ctx context.Context, objectName string, limit int64) ([]byte, error)
}

type Deleter interface {
	Delete(ctx context.Context, objectName string) error
}

// ObjectStore is what the services need: private uploads read back through
// short-lived signed URLs.
type ObjectStore interface {
	Uploader
	Downloader
	Signer
	Deleter
}

// ObjectName strips the gs://bucket/ prefix from a stored path.
func ObjectName(storedPath string) string {
	if !strings.HasPrefix(storedPath, "gs://") {
		return storedPath
	}
	rest := strings.TrimPrefix(storedPath, "gs://")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i+1:]
	}
	return ""
}
