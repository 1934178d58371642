// Package upload publishes ledger files to remote object storage.
package upload

import "context"

// Uploader uploads a local ledger file to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// UploadLedger uploads the file at localPath under the configured
	// prefix, keyed by the file's basename, and returns the object key.
	UploadLedger(ctx context.Context, localPath string) (string, error)
}
