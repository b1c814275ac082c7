package harvester_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
	"github.com/bft-labs/harvester/pkg/harvester"
)

// dataset serves IDs [0, n) at perPage rows per result page.
type dataset struct {
	n       int64
	perPage int64

	mu       sync.Mutex
	sessions int
}

func (d *dataset) clip(r domain.IDRange) (lo, hi int64) {
	lo, hi = r.Start, d.n-1
	if !r.IsOpen() && r.EndValue() < hi {
		hi = r.EndValue()
	}
	return lo, hi
}

func (d *dataset) oracle() ports.PageCounter {
	return ports.PageCounterFunc(func(ctx context.Context, q domain.Query) (domain.PageCount, error) {
		if err := ctx.Err(); err != nil {
			return domain.PageCount{}, err
		}
		if err := q.Validate(); err != nil {
			return domain.PageCount{}, err
		}
		r := domain.IDRange{End: q.End}
		if q.Start != nil {
			r.Start = *q.Start
		}
		lo, hi := d.clip(r)
		pc := domain.PageCount{}
		if hi >= lo {
			pc.Pages = (hi - lo + d.perPage) / d.perPage
		}
		if q.End == nil {
			pc.RecordsPerPage = int(d.perPage)
		}
		return pc, nil
	})
}

func (d *dataset) NewSession(ctx context.Context, tenant domain.Tenant) (ports.ReportSession, error) {
	d.mu.Lock()
	d.sessions++
	d.mu.Unlock()
	return &reportSession{d: d}, nil
}

func (d *dataset) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions
}

type reportSession struct {
	d *dataset
	r domain.IDRange
}

func (s *reportSession) Search(ctx context.Context, r domain.IDRange) (bool, error) {
	s.r = r
	lo, hi := s.d.clip(r)
	return hi >= lo, nil
}

func (s *reportSession) Generate(ctx context.Context) error { return nil }

func (s *reportSession) Status(ctx context.Context) (ports.ReportStatus, error) {
	return ports.ReportStatus{Ready: true, Link: "report.csv"}, nil
}

func (s *reportSession) Fetch(ctx context.Context, link string, w io.Writer) (int64, error) {
	lo, hi := s.d.clip(s.r)
	n, err := fmt.Fprint(w, "account,owner\n")
	total := int64(n)
	for id := lo; id <= hi && err == nil; id++ {
		n, err = fmt.Fprintf(w, "R%07d,owner %d\n", id, id)
		total += int64(n)
	}
	return total, err
}

func (s *reportSession) Close() error { return nil }

// recorder implements harvester.EventHandler.
type recorder struct {
	mu     sync.Mutex
	phases []harvester.Phase
	done   []string
	failed []string
}

func (r *recorder) OnPhaseChange(e harvester.PhaseChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, e.Current)
}

func (r *recorder) OnRangeDone(e harvester.RangeDoneEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, e.Range.String())
}

func (r *recorder) OnRangeFailed(e harvester.RangeFailedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, e.Range.String())
}

// trackingPlugin records initialization and shutdown order.
type trackingPlugin struct {
	name      string
	order     *[]string
	initError error
	throttle  harvester.Throttle
}

func (p *trackingPlugin) Name() string { return p.name }

func (p *trackingPlugin) Initialize(ctx context.Context, cfg harvester.PluginConfig) error {
	if p.initError != nil {
		return p.initError
	}
	*p.order = append(*p.order, "init:"+p.name)
	p.throttle = cfg.Throttle
	cfg.Throttle.SetRoundWait(0)
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	*p.order = append(*p.order, "shutdown:"+p.name)
	return nil
}

var errPluginBroken = errors.New("plugin broken")

func testConfig(dir string) harvester.Config {
	cfg := harvester.DefaultConfig()
	cfg.Tenant = "Adams"
	cfg.DownloadDir = dir
	cfg.Parts = 3
	cfg.OracleDelay = time.Millisecond
	cfg.PollInterval = time.Millisecond
	cfg.ReportTimeout = time.Second
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	return cfg
}
