package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/bft-labs/harvester/internal/ports"
)

// Compression selects how the export is encoded on disk.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionXZ   Compression = "xz"
)

// ParseCompression validates a compression name. Empty means none.
func ParseCompression(s string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(s))) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionXZ:
		return CompressionXZ, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want none or xz)", s)
	}
}

// ExportSink implements ports.ExportSink with an atomic file write.
type ExportSink struct {
	path        string
	compression Compression
}

// NewExportSink creates a sink writing to path. With xz compression the
// path gets an .xz suffix if it does not have one.
func NewExportSink(path string, compression Compression) *ExportSink {
	if compression == CompressionXZ && !strings.HasSuffix(path, ".xz") {
		path += ".xz"
	}
	return &ExportSink{path: path, compression: compression}
}

// Path returns the final export location.
func (s *ExportSink) Path() string {
	return s.path
}

// Exists reports whether an export is already present.
func (s *ExportSink) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Create opens a temp file next to the export.
func (s *ExportSink) Create(ctx context.Context) (ports.ExportWriter, error) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return nil, err
	}

	w := &exportWriter{f: f, path: s.path, hash: blake3.New()}
	w.out = f
	if s.compression == CompressionXZ {
		xw, err := xz.NewWriter(f)
		if err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, err
		}
		w.xz = xw
		w.out = xw
	}
	return w, nil
}

type exportWriter struct {
	f    *os.File
	xz   *xz.Writer
	out  io.Writer
	hash *blake3.Hasher
	path string
	n    int64
	done bool
}

func (w *exportWriter) Write(p []byte) (int, error) {
	n, err := w.out.Write(p)
	w.hash.Write(p[:n])
	w.n += int64(n)
	return n, err
}

// Commit flushes compression, then renames the temp file over the export.
func (w *exportWriter) Commit() (ports.ExportInfo, error) {
	if w.done {
		return ports.ExportInfo{}, errors.New("export writer already closed")
	}
	w.done = true
	tmp := w.f.Name()

	err := func() error {
		if w.xz != nil {
			if err := w.xz.Close(); err != nil {
				return err
			}
		}
		if err := w.f.Sync(); err != nil {
			return err
		}
		return w.f.Close()
	}()
	if err != nil {
		w.f.Close()
		os.Remove(tmp)
		return ports.ExportInfo{}, err
	}

	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return ports.ExportInfo{}, err
	}
	return ports.ExportInfo{
		Path:   w.path,
		Bytes:  w.n,
		Digest: hex.EncodeToString(w.hash.Sum(nil)),
	}, nil
}

// Abort discards the temp file and leaves any previous export in place.
func (w *exportWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.f.Close()
	return os.Remove(w.f.Name())
}
