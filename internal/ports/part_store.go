package ports

import (
	"context"
	"io"

	"github.com/bft-labs/harvester/internal/domain"
)

// PartStore persists completed ranges. File names are the completion
// record: a part that exists is done, regardless of content.
type PartStore interface {
	// List returns all completed parts sorted by start.
	List(ctx context.Context) ([]domain.PartFile, error)

	// Has reports whether the exact range already has a part.
	Has(ctx context.Context, r domain.IDRange) (bool, error)

	// Create opens a writer for r. Nothing is visible to List until Commit.
	Create(ctx context.Context, r domain.IDRange) (PartWriter, error)

	// WriteEmpty records r as done with no data. The result is a zero-byte
	// part: a range whose search matched nothing still needs a file, or the
	// open tail would never terminate and sparse holes would show up as gaps
	// on every resume. Readers skip zero-byte parts.
	WriteEmpty(ctx context.Context, r domain.IDRange) (domain.PartFile, error)

	// Open reads a part's contents.
	Open(ctx context.Context, p domain.PartFile) (io.ReadCloser, error)

	// Clean removes every part.
	Clean(ctx context.Context) error

	// Dir is the location of the parts, for display.
	Dir() string
}

// PartWriter receives the bytes of one part.
type PartWriter interface {
	io.Writer

	// Commit makes the part visible atomically.
	// Returns domain.ErrPartExists if another writer committed first.
	Commit() (domain.PartFile, error)

	// Abort discards the written bytes.
	Abort() error
}
