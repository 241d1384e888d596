package port

import "context"

// ArtifactStore durably stores processing outputs and serves the source
// input. Delete is best-effort; callers treat its errors as non-fatal.
type ArtifactStore interface {
	Download(ctx context.Context, key, destPath string) error
	// Upload stores the local file under key and returns a retrievable URL
	// and the stored size.
	Upload(ctx context.Context, localPath, key, contentType string) (url string, size int64, err error)
	Delete(ctx context.Context, key string) error
}
