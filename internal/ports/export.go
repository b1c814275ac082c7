package ports

import (
	"context"
	"io"
)

// ExportSink receives the merged output.
type ExportSink interface {
	// Create opens a writer whose output only replaces the export on Commit.
	Create(ctx context.Context) (ExportWriter, error)

	// Path is the final location of the export.
	Path() string
}

// ExportWriter receives merged bytes.
type ExportWriter interface {
	io.Writer

	// Commit finalizes the export.
	Commit() (ExportInfo, error)

	// Abort discards the output and leaves any previous export untouched.
	Abort() error
}

// ExportInfo describes a committed export.
type ExportInfo struct {
	Path string

	// Bytes counts uncompressed content.
	Bytes int64

	// Digest is the hex BLAKE3 digest of the uncompressed content.
	Digest string
}

// Publisher copies a committed export to durable storage.
type Publisher interface {
	// Publish uploads the file at path under key and returns its location.
	Publish(ctx context.Context, path, key string) (string, error)
}
