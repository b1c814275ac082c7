package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// MergeOptions controls a merge.
type MergeOptions struct {
	// Force merges even when gaps exist or the tail is not open-ended.
	Force bool
}

// MergeResult describes a written export.
type MergeResult struct {
	Path string

	// Parts counts part files whose data was written.
	Parts  int
	Bytes  int64
	Digest string

	// Gaps and Unterminated are set when a forced merge ignored them.
	Gaps         []domain.Gap
	Unterminated bool
}

// Merger concatenates part files into a single export with one header line.
type Merger struct {
	store  ports.PartStore
	sink   ports.ExportSink
	logger ports.Logger
}

// NewMerger creates a merger reading from store and writing to sink.
func NewMerger(store ports.PartStore, sink ports.ExportSink, logger ports.Logger) *Merger {
	return &Merger{store: store, sink: sink, logger: logger}
}

// Check returns the merge preconditions for the current parts.
// The error is a *domain.MergeBlockedError when the merge would be blocked.
func (m *Merger) Check(ctx context.Context) ([]domain.PartFile, error) {
	parts, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list parts: %w", err)
	}
	if len(parts) == 0 {
		return nil, &domain.MergeBlockedError{NoParts: true}
	}

	blocked := &domain.MergeBlockedError{
		Gaps:         domain.FindGaps(parts),
		Unterminated: !parts[len(parts)-1].Range.IsOpen(),
	}
	if len(blocked.Gaps) > 0 || blocked.Unterminated {
		return parts, blocked
	}
	return parts, nil
}

// Merge writes the export. The header line is taken from the first non-empty
// part; the first line of every later part is skipped. Output is a pure
// function of the part set, so repeated merges are byte-identical.
func (m *Merger) Merge(ctx context.Context, opts MergeOptions) (MergeResult, error) {
	parts, err := m.Check(ctx)
	var blocked *domain.MergeBlockedError
	switch {
	case err == nil:
	case errors.As(err, &blocked) && opts.Force && !blocked.NoParts:
		m.logger.Warn("merging despite incomplete parts",
			ports.Int("gaps", len(blocked.Gaps)),
			ports.Bool("unterminated", blocked.Unterminated),
		)
	default:
		return MergeResult{}, err
	}

	w, err := m.sink.Create(ctx)
	if err != nil {
		return MergeResult{}, fmt.Errorf("create export: %w", err)
	}

	res := MergeResult{}
	if blocked != nil {
		res.Gaps = blocked.Gaps
		res.Unterminated = blocked.Unterminated
	}

	bw := bufio.NewWriter(w)
	headerDone := false
	for _, p := range parts {
		if err := ctx.Err(); err != nil {
			_ = w.Abort()
			return MergeResult{}, err
		}
		if p.Empty() {
			continue
		}
		wrote, err := m.copyPart(ctx, bw, p, !headerDone)
		if err != nil {
			_ = w.Abort()
			return MergeResult{}, fmt.Errorf("merge %s: %w", p.Name, err)
		}
		if wrote {
			headerDone = true
			res.Parts++
		}
	}
	if err := bw.Flush(); err != nil {
		_ = w.Abort()
		return MergeResult{}, fmt.Errorf("write export: %w", err)
	}

	info, err := w.Commit()
	if err != nil {
		return MergeResult{}, fmt.Errorf("commit export: %w", err)
	}
	res.Path = info.Path
	res.Bytes = info.Bytes
	res.Digest = info.Digest

	m.logger.Info("export written",
		ports.String("path", res.Path),
		ports.Int("parts", res.Parts),
		ports.Int64("bytes", res.Bytes),
		ports.String("blake3", res.Digest),
	)
	return res, nil
}

// copyPart appends one part to w. The first line is kept only when
// withHeader is set. Every written part ends with a newline.
func (m *Merger) copyPart(ctx context.Context, w *bufio.Writer, p domain.PartFile, withHeader bool) (bool, error) {
	rc, err := m.store.Open(ctx, p)
	if err != nil {
		return false, err
	}
	defer rc.Close()

	br := bufio.NewReader(rc)
	header, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	if header == "" {
		return false, nil
	}
	if withHeader {
		if err := writeLine(w, header); err != nil {
			return false, err
		}
	}

	last := byte('\n')
	buf := make([]byte, 32*1024)
	for {
		n, rerr := br.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return false, err
			}
			last = buf[n-1]
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return false, rerr
		}
	}
	if last != '\n' {
		if err := w.WriteByte('\n'); err != nil {
			return false, err
		}
	}
	return true, nil
}

func writeLine(w *bufio.Writer, line string) error {
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if line[len(line)-1] != '\n' {
		return w.WriteByte('\n')
	}
	return nil
}
