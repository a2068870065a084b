// Package imagestore provides byte-level access to stored receipt images,
// keyed by an opaque object path. The storage protocol is not the pipeline's
// concern.
package imagestore

import "context"

// Store is the object-storage collaborator the pipeline consumes.
type Store interface {
	// Download fetches the object at path.
	Download(ctx context.Context, path string) ([]byte, error)
	// Upload stores body at path and returns the public URL.
	Upload(ctx context.Context, path string, body []byte, contentType string) (string, error)
	// Remove deletes the object at path. Used to clean up after a failed
	// receipt insert so storage does not accumulate orphans.
	Remove(ctx context.Context, path string) error
}
