package port

import (
	"context"
	"io"
)

type ObjectStorage interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error

	// PublicURL is the address clients use to fetch an uploaded object
	PublicURL(objectName string) string
}
