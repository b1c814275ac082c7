package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// fakeOracle simulates a dataset of contiguous IDs [0, n) shown perPage
// rows to a page.
type fakeOracle struct {
	n       int64
	perPage int64

	mu    sync.Mutex
	calls []domain.Query
	fail  func(q domain.Query) error
}

func newFakeOracle(n, perPage int64) *fakeOracle {
	return &fakeOracle{n: n, perPage: perPage}
}

// count returns how many IDs of the dataset fall in [start, end].
func (o *fakeOracle) count(start int64, end *int64) int64 {
	hi := o.n - 1
	if end != nil && *end < hi {
		hi = *end
	}
	if start > hi {
		return 0
	}
	return hi - start + 1
}

func (o *fakeOracle) PageCount(ctx context.Context, q domain.Query) (domain.PageCount, error) {
	if err := ctx.Err(); err != nil {
		return domain.PageCount{}, err
	}
	if err := q.Validate(); err != nil {
		return domain.PageCount{}, err
	}

	o.mu.Lock()
	o.calls = append(o.calls, q)
	fail := o.fail
	o.mu.Unlock()

	if fail != nil {
		if err := fail(q); err != nil {
			return domain.PageCount{}, err
		}
	}

	var start int64
	if q.Start != nil {
		start = *q.Start
	}
	c := o.count(start, q.End)
	pc := domain.PageCount{Pages: (c + o.perPage - 1) / o.perPage}
	if q.End == nil {
		pc.RecordsPerPage = int(o.perPage)
	}
	return pc, nil
}

func (o *fakeOracle) Calls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

// fakeSite serves report sessions over the same dataset as a fakeOracle.
type fakeSite struct {
	oracle *fakeOracle

	mu         sync.Mutex
	searchErrs map[int64]int
	readyAfter int
	noLink     bool
	fetchErr   error
	onFetch    func(r domain.IDRange)
	sessions   int
}

func newFakeSite(o *fakeOracle) *fakeSite {
	return &fakeSite{oracle: o, searchErrs: map[int64]int{}}
}

// failSearch makes the next n searches for ranges starting at start fail.
func (s *fakeSite) failSearch(start int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchErrs[start] = n
}

func (s *fakeSite) NewSession(ctx context.Context, tenant domain.Tenant) (ports.ReportSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions++
	return &fakeSession{site: s}, nil
}

type fakeSession struct {
	site  *fakeSite
	r     domain.IDRange
	polls int
}

func (f *fakeSession) Search(ctx context.Context, r domain.IDRange) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.site.mu.Lock()
	if n := f.site.searchErrs[r.Start]; n > 0 {
		f.site.searchErrs[r.Start] = n - 1
		f.site.mu.Unlock()
		return false, fmt.Errorf("%w: pagination missing", domain.ErrScrape)
	}
	f.site.mu.Unlock()

	f.r = r
	return f.site.oracle.count(r.Start, r.End) > 0, nil
}

func (f *fakeSession) Generate(ctx context.Context) error {
	return ctx.Err()
}

func (f *fakeSession) Status(ctx context.Context) (ports.ReportStatus, error) {
	f.polls++
	f.site.mu.Lock()
	defer f.site.mu.Unlock()
	if f.site.readyAfter < 0 || f.polls <= f.site.readyAfter {
		return ports.ReportStatus{}, nil
	}
	if f.site.noLink {
		return ports.ReportStatus{Ready: true}, nil
	}
	return ports.ReportStatus{Ready: true, Link: "/files/" + f.r.String()}, nil
}

func (f *fakeSession) Fetch(ctx context.Context, link string, w io.Writer) (int64, error) {
	f.site.mu.Lock()
	fetchErr, onFetch := f.site.fetchErr, f.site.onFetch
	f.site.mu.Unlock()
	if fetchErr != nil {
		return 0, fetchErr
	}

	n, err := io.WriteString(w, csvFor(f.site.oracle, f.r))
	if onFetch != nil {
		onFetch(f.r)
	}
	return int64(n), err
}

func (f *fakeSession) Close() error { return nil }

// csvFor renders the rows of r with a header line.
func csvFor(o *fakeOracle, r domain.IDRange) string {
	var b strings.Builder
	b.WriteString("id,value\n")
	hi := o.n - 1
	if r.End != nil && *r.End < hi {
		hi = *r.End
	}
	for id := r.Start; id <= hi; id++ {
		fmt.Fprintf(&b, "%d,v%d\n", id, id)
	}
	return b.String()
}

// memStore is an in-memory PartStore.
type memStore struct {
	mu    sync.Mutex
	parts map[string]memPart
}

type memPart struct {
	r    domain.IDRange
	data []byte
}

func newMemStore() *memStore {
	return &memStore{parts: map[string]memPart{}}
}

func partName(r domain.IDRange) string {
	return fmt.Sprintf("%d-%d.csv", r.Start, r.EndValue())
}

func (m *memStore) put(r domain.IDRange, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parts[partName(r)] = memPart{r: r, data: []byte(data)}
}

func (m *memStore) List(ctx context.Context) ([]domain.PartFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PartFile, 0, len(m.parts))
	for name, p := range m.parts {
		out = append(out, domain.PartFile{Range: p.r, Name: name, Size: int64(len(p.data))})
	}
	domain.SortParts(out)
	return out, nil
}

func (m *memStore) Has(ctx context.Context, r domain.IDRange) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.parts[partName(r)]
	return ok, nil
}

func (m *memStore) Create(ctx context.Context, r domain.IDRange) (ports.PartWriter, error) {
	return &memWriter{store: m, r: r}, nil
}

func (m *memStore) WriteEmpty(ctx context.Context, r domain.IDRange) (domain.PartFile, error) {
	w := &memWriter{store: m, r: r}
	return w.Commit()
}

func (m *memStore) Open(ctx context.Context, p domain.PartFile) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.parts[p.Name]
	if !ok {
		return nil, errors.New("no such part")
	}
	return io.NopCloser(bytes.NewReader(mp.data)), nil
}

func (m *memStore) Clean(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parts = map[string]memPart{}
	return nil
}

func (m *memStore) Dir() string { return "mem" }

// Ranges returns the stored ranges sorted by start.
func (m *memStore) Ranges() []string {
	parts, _ := m.List(context.Background())
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Range.String()
	}
	return out
}

type memWriter struct {
	store *memStore
	r     domain.IDRange
	buf   bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Commit() (domain.PartFile, error) {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	name := partName(w.r)
	if _, ok := w.store.parts[name]; ok {
		return domain.PartFile{}, domain.ErrPartExists
	}
	w.store.parts[name] = memPart{r: w.r, data: append([]byte(nil), w.buf.Bytes()...)}
	return domain.PartFile{Range: w.r, Name: name, Size: int64(w.buf.Len())}, nil
}

func (w *memWriter) Abort() error {
	w.buf.Reset()
	return nil
}

// memSink is an in-memory ExportSink.
type memSink struct {
	mu      sync.Mutex
	data    []byte
	commits int
}

func (s *memSink) Create(ctx context.Context) (ports.ExportWriter, error) {
	return &memExport{sink: s}, nil
}

func (s *memSink) Path() string { return "mem://export.csv" }

func (s *memSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.data)
}

type memExport struct {
	sink *memSink
	buf  bytes.Buffer
}

func (e *memExport) Write(p []byte) (int, error) { return e.buf.Write(p) }

func (e *memExport) Commit() (ports.ExportInfo, error) {
	e.sink.mu.Lock()
	defer e.sink.mu.Unlock()
	e.sink.data = append([]byte(nil), e.buf.Bytes()...)
	e.sink.commits++
	return ports.ExportInfo{Path: e.sink.Path(), Bytes: int64(e.buf.Len())}, nil
}

func (e *memExport) Abort() error { return nil }

// coverage checks that parts tile [0, open) without gaps or overlaps and
// returns the ranges in order.
func coverage(parts []domain.PartFile) error {
	sort.SliceStable(parts, func(i, j int) bool { return parts[i].Range.Start < parts[j].Range.Start })
	var next int64
	for i, p := range parts {
		if p.Range.Start != next {
			return fmt.Errorf("part %d starts at %d, want %d", i, p.Range.Start, next)
		}
		if p.Range.IsOpen() {
			if i != len(parts)-1 {
				return fmt.Errorf("open part %s is not last", p.Range)
			}
			return nil
		}
		next = *p.Range.End + 1
	}
	return errors.New("no open tail part")
}
