package upload

import "context"

// Uploader uploads trace files to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// UploadFile uploads a single trace file under the configured prefix,
	// keyed by its basename. Returns the object key.
	UploadFile(ctx context.Context, localPath string) (string, error)

	// UploadDir uploads every file in localDir, keyed by path relative
	// to localDir. Returns the number of files uploaded.
	UploadDir(ctx context.Context, localDir string) (int, error)
}
