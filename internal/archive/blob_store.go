// Package archive defines the interfaces for a blob storage provider used to
// retain raw copies of imported records. The abstraction keeps the import
// pipeline independent of a specific backend (e.g. Google Cloud Storage or
// the local filesystem).
package archive

import (
	"context"
	"io"
)

// BlobStore defines the common interface for a blob storage provider. It
// abstracts the operation of saving data and reporting where it landed.
type BlobStore interface {
	// PutObject uploads data to a specified object path/key in the blob
	// store and returns a URI for the stored object.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// NopStore is a blob store that performs no operations. It is useful for
// testing or running imports in a dry-run mode where records are processed
// but not archived.
type NopStore struct{}

// PutObject discards the data and returns an empty URI.
func (NopStore) PutObject(_ context.Context, _ string, _ string, _ io.Reader) (string, error) {
	return "", nil
}
