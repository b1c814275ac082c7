package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

const (
	// partExt is the extension of completed part files.
	partExt = ".csv"

	tempSuffix = ".tmp"
)

var partNameRe = regexp.MustCompile(`^(\d+)-(\d+)\.csv$`)

// PartStore implements ports.PartStore over a directory of part files.
// A file named {start}-{end}.csv records that [start, end] is done; an end
// of 0 marks the open tail range.
type PartStore struct {
	dir string
}

// NewPartStore creates a part store rooted at dir.
func NewPartStore(dir string) *PartStore {
	return &PartStore{dir: dir}
}

// PartName returns the file name recording r.
func PartName(r domain.IDRange) string {
	return fmt.Sprintf("%d-%d%s", r.Start, r.EndValue(), partExt)
}

// ParsePartName maps a file name back to its range.
// ok is false for names that are not part files.
func ParsePartName(name string) (r domain.IDRange, ok bool) {
	m := partNameRe.FindStringSubmatch(name)
	if m == nil {
		return domain.IDRange{}, false
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return domain.IDRange{}, false
	}
	end, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return domain.IDRange{}, false
	}
	if end == 0 {
		return domain.Open(start), true
	}
	if end < start {
		return domain.IDRange{}, false
	}
	return domain.Bounded(start, end), true
}

// Dir returns the parts directory.
func (s *PartStore) Dir() string {
	return s.dir
}

// List returns all completed parts sorted by start.
// Temporary files and unrelated names are ignored. A missing directory
// means no parts.
func (s *PartStore) List(ctx context.Context) ([]domain.PartFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var parts []domain.PartFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		r, ok := ParsePartName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		parts = append(parts, domain.PartFile{Range: r, Name: e.Name(), Size: info.Size()})
	}
	domain.SortParts(parts)
	return parts, nil
}

// Has reports whether a part for exactly r exists.
func (s *PartStore) Has(ctx context.Context, r domain.IDRange) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, PartName(r)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Create opens a temporary file for r in the parts directory.
func (s *PartStore) Create(ctx context.Context, r domain.IDRange) (ports.PartWriter, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, err
	}

	name := PartName(r)
	f, err := os.CreateTemp(s.dir, "."+name+".*"+tempSuffix)
	if err != nil {
		return nil, err
	}
	return &partWriter{
		f:     f,
		final: filepath.Join(s.dir, name),
		part:  domain.PartFile{Range: r, Name: name},
	}, nil
}

// WriteEmpty records r as done with no data.
func (s *PartStore) WriteEmpty(ctx context.Context, r domain.IDRange) (domain.PartFile, error) {
	w, err := s.Create(ctx, r)
	if err != nil {
		return domain.PartFile{}, err
	}
	return w.Commit()
}

// RemoveTemp deletes temp files left behind by an interrupted process.
// It must not run while another writer is using the directory.
func (s *PartStore) RemoveTemp(ctx context.Context) (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, ".*"+tempSuffix))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Open reads a part's contents.
func (s *PartStore) Open(ctx context.Context, p domain.PartFile) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, p.Name))
}

// Clean removes the parts directory and everything in it.
func (s *PartStore) Clean(ctx context.Context) error {
	return os.RemoveAll(s.dir)
}

// partWriter writes to a temp file that becomes the part on Commit.
type partWriter struct {
	f     *os.File
	final string
	part  domain.PartFile
	n     int64
	done  bool
}

func (w *partWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.n += int64(n)
	return n, err
}

// Commit publishes the temp file under the part name without replacing
// an existing part.
func (w *partWriter) Commit() (domain.PartFile, error) {
	if w.done {
		return domain.PartFile{}, errors.New("part writer already closed")
	}
	w.done = true
	tmp := w.f.Name()
	defer os.Remove(tmp)

	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return domain.PartFile{}, err
	}
	if err := w.f.Close(); err != nil {
		return domain.PartFile{}, err
	}

	// Link fails if the part exists, so a completed part is never replaced.
	if err := os.Link(tmp, w.final); err != nil {
		if os.IsExist(err) {
			return domain.PartFile{}, fmt.Errorf("%w: %s", domain.ErrPartExists, w.part.Name)
		}
		if _, serr := os.Stat(w.final); serr == nil {
			return domain.PartFile{}, fmt.Errorf("%w: %s", domain.ErrPartExists, w.part.Name)
		}
		// Hard links are unsupported on some file systems.
		if err := os.Rename(tmp, w.final); err != nil {
			return domain.PartFile{}, err
		}
	}

	w.part.Size = w.n
	return w.part, nil
}

// Abort removes the temp file.
func (w *partWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.f.Close()
	return os.Remove(w.f.Name())
}
