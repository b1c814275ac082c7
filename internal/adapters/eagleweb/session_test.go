package eagleweb

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/pkg/log"
)

func TestSession_Download(t *testing.T) {
	site, srv := newTestSite(t, 370, 10)
	site.set(func(s *testSite) { s.readyPolls = 2 })
	sessions := NewSessions(testConfig(srv), srv.Client().Transport, log.NewNoopLogger())
	ctx := context.Background()

	sess, err := sessions.NewSession(ctx, domain.Tenant{Name: "Adams"})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	defer sess.Close()

	found, err := sess.Search(ctx, domain.Bounded(360, 365))
	if err != nil || !found {
		t.Fatalf("Search() = %v, %v; want found", found, err)
	}
	if err := sess.Generate(ctx); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	polls := 0
	var link string
	for {
		st, err := sess.Status(ctx)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		polls++
		if st.Ready {
			link = st.Link
			break
		}
		if polls > 5 {
			t.Fatal("report never became ready")
		}
	}
	if polls != 3 {
		t.Errorf("polls = %d, want 3", polls)
	}
	if !strings.HasPrefix(link, srv.URL+"/assessor/eagleweb/download/") {
		t.Errorf("link = %q, want under download base", link)
	}

	var buf bytes.Buffer
	n, err := sess.Fetch(ctx, link, &buf)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("Fetch() n = %d, want %d", n, buf.Len())
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 7 || lines[0] != "account,owner" || lines[1] != "R0000360,owner 360" {
		t.Errorf("report = %q", buf.String())
	}
}

func TestSession_SearchNoResults(t *testing.T) {
	_, srv := newTestSite(t, 370, 10)
	sessions := NewSessions(testConfig(srv), srv.Client().Transport, log.NewNoopLogger())

	sess, err := sessions.NewSession(context.Background(), domain.Tenant{Name: "Adams"})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	found, err := sess.Search(context.Background(), domain.Open(1000))
	if err != nil || found {
		t.Fatalf("Search() = %v, %v; want not found", found, err)
	}
}

func TestSession_ReadyWithoutLink(t *testing.T) {
	site, srv := newTestSite(t, 370, 10)
	site.set(func(s *testSite) { s.noLink = true })
	sessions := NewSessions(testConfig(srv), srv.Client().Transport, log.NewNoopLogger())

	sess, err := sessions.NewSession(context.Background(), domain.Tenant{Name: "Adams"})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	st, err := sess.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.Ready || st.Link != "" {
		t.Errorf("Status() = %+v, want ready without link", st)
	}
}

func TestSession_FetchStatusError(t *testing.T) {
	_, srv := newTestSite(t, 370, 10)
	sessions := NewSessions(testConfig(srv), srv.Client().Transport, log.NewNoopLogger())

	sess, err := sessions.NewSession(context.Background(), domain.Tenant{Name: "Adams"})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	_, err = sess.Fetch(context.Background(), srv.URL+"/assessor/eagleweb/download/other.csv", &bytes.Buffer{})
	if !errors.Is(err, domain.ErrDownload) {
		t.Fatalf("Fetch() error = %v, want ErrDownload", err)
	}
	var status *domain.HTTPStatusError
	if !errors.As(err, &status) || status.StatusCode != http.StatusForbidden {
		t.Errorf("Fetch() error = %v, want status 403", err)
	}
}

func TestSessions_SeparateCookies(t *testing.T) {
	site, srv := newTestSite(t, 370, 10)
	sessions := NewSessions(testConfig(srv), srv.Client().Transport, log.NewNoopLogger())
	ctx := context.Background()

	a, err := sessions.NewSession(ctx, domain.Tenant{Name: "Adams"})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	b, err := sessions.NewSession(ctx, domain.Tenant{Name: "Adams"})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if _, err := a.Search(ctx, domain.Bounded(0, 9)); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Search(ctx, domain.Bounded(10, 19)); err != nil {
		t.Fatal(err)
	}
	if _, _, n := site.stats(); n != 2 {
		t.Errorf("distinct sessions = %d, want 2", n)
	}
}

func TestConfig_ForTenant(t *testing.T) {
	cfg := DefaultConfig().ForTenant(domain.Tenant{Name: "Clear_Creek"})
	if cfg.SiteURL != "http://assessor.co.clear-creek.co.us" || cfg.SearchPath != "/Assessor/taxweb/results.jsp" {
		t.Errorf("ForTenant(clear_creek) = %+v", cfg)
	}

	custom := DefaultConfig()
	custom.SiteURL = "http://localhost:8080"
	if got := custom.ForTenant(domain.Tenant{Name: "grand"}).SiteURL; got != custom.SiteURL {
		t.Errorf("ForTenant kept SiteURL = %q, want %q", got, custom.SiteURL)
	}

	ep, err := DefaultConfig().resolve(domain.Tenant{Name: "Adams"})
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if ep.search != "http://assessor.co.adams.co.us/assessor/taxweb/results.jsp" {
		t.Errorf("search endpoint = %q", ep.search)
	}
}
