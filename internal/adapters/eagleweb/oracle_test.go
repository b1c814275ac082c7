package eagleweb

import (
	"context"
	"errors"
	"testing"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/pkg/log"
)

func TestOracle_PageCount(t *testing.T) {
	site, srv := newTestSite(t, 370, 10)
	o := NewOracle(testConfig(srv), domain.Tenant{Name: "Adams"}, srv.Client().Transport, log.NewNoopLogger())
	ctx := context.Background()

	tests := []struct {
		name      string
		q         domain.Query
		wantPages int64
		wantRPP   int
	}{
		{name: "open", q: domain.From(0), wantPages: 37, wantRPP: 10},
		{name: "bounded", q: domain.Between(0, 128), wantPages: 13},
		{name: "tail", q: domain.From(365), wantPages: 1, wantRPP: 5},
		{name: "past end", q: domain.From(400)},
		{name: "single", q: domain.Between(7, 7), wantPages: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := o.PageCount(ctx, tt.q)
			if err != nil {
				t.Fatalf("PageCount(%s) error = %v", tt.q, err)
			}
			if pc.Pages != tt.wantPages {
				t.Errorf("PageCount(%s).Pages = %d, want %d", tt.q, pc.Pages, tt.wantPages)
			}
			if pc.RecordsPerPage != tt.wantRPP {
				t.Errorf("PageCount(%s).RecordsPerPage = %d, want %d", tt.q, pc.RecordsPerPage, tt.wantRPP)
			}
		})
	}

	if signIns, _, _ := site.stats(); signIns != 1 {
		t.Errorf("sign-ins = %d, want 1 reused session", signIns)
	}
}

func TestOracle_InvalidQuery(t *testing.T) {
	site, srv := newTestSite(t, 370, 10)
	o := NewOracle(testConfig(srv), domain.Tenant{Name: "Adams"}, srv.Client().Transport, log.NewNoopLogger())

	_, err := o.PageCount(context.Background(), domain.Query{})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("PageCount(None) error = %v, want ErrInvalidQuery", err)
	}
	if _, searches, _ := site.stats(); searches != 0 {
		t.Errorf("searches = %d, want 0", searches)
	}
}

func TestOracle_MissingPageTotal(t *testing.T) {
	site, srv := newTestSite(t, 370, 10)
	site.set(func(s *testSite) { s.hideTotal = true })
	o := NewOracle(testConfig(srv), domain.Tenant{Name: "Adams"}, srv.Client().Transport, log.NewNoopLogger())

	_, err := o.PageCount(context.Background(), domain.From(0))
	if !errors.Is(err, domain.ErrScrape) {
		t.Fatalf("PageCount() error = %v, want ErrScrape", err)
	}

	// A scrape failure drops the session.
	site.set(func(s *testSite) { s.hideTotal = false })
	if _, err := o.PageCount(context.Background(), domain.From(0)); err != nil {
		t.Fatalf("PageCount() after recovery error = %v", err)
	}
	if signIns, _, _ := site.stats(); signIns != 2 {
		t.Errorf("sign-ins = %d, want 2", signIns)
	}
}

func TestParsePageCount(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    int64
		wantErr error
	}{
		{
			name: "no results",
			page: `<div id="middle">No results found for query</div>`,
		},
		{
			name: "one page",
			page: `<div id="middle"><b>Showing 1-3 of 3 results on 1 page</b></div>`,
			want: 1,
		},
		{
			name:    "summary outside middle",
			page:    `<div>Showing 1-3 of 3 results on 1 page</div><div id="middle"></div>`,
			wantErr: domain.ErrScrape,
		},
		{
			name:    "empty",
			page:    ``,
			wantErr: domain.ErrScrape,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := parsePageCount(tt.page, false)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("parsePageCount() error = %v, want %v", err, tt.wantErr)
			}
			if pc.Pages != tt.want {
				t.Errorf("parsePageCount() = %d, want %d", pc.Pages, tt.want)
			}
		})
	}
}
