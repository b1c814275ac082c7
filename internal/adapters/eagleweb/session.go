package eagleweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// Sessions opens a signed-in guest session per range download.
// Sessions share the transport but never cookies.
type Sessions struct {
	cfg       Config
	transport http.RoundTripper
	logger    ports.Logger
}

// NewSessions creates a session factory. A nil transport uses
// http.DefaultTransport.
func NewSessions(cfg Config, transport http.RoundTripper, logger ports.Logger) *Sessions {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Sessions{cfg: cfg, transport: transport, logger: logger}
}

// NewSession implements ports.ReportSessions.
func (s *Sessions) NewSession(ctx context.Context, tenant domain.Tenant) (ports.ReportSession, error) {
	ep, err := s.cfg.resolve(tenant)
	if err != nil {
		return nil, err
	}
	c, err := newClient(s.cfg, ep, s.transport)
	if err != nil {
		return nil, err
	}
	if err := c.signIn(ctx); err != nil {
		return nil, err
	}
	return &session{client: c, logger: s.logger}, nil
}

type session struct {
	client *client
	logger ports.Logger
}

func (s *session) Search(ctx context.Context, r domain.IDRange) (bool, error) {
	page, err := s.client.search(ctx, r.Query())
	if err != nil {
		return false, err
	}
	return !strings.Contains(page, noResultsMarker), nil
}

func (s *session) Generate(ctx context.Context) error {
	_, err := s.client.get(ctx, s.client.ep.generate)
	return err
}

func (s *session) Status(ctx context.Context) (ports.ReportStatus, error) {
	page, err := s.client.get(ctx, s.client.ep.status)
	if err != nil {
		return ports.ReportStatus{}, err
	}
	if strings.Contains(page, generatingMarker) {
		return ports.ReportStatus{}, nil
	}

	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return ports.ReportStatus{}, fmt.Errorf("%w: parse report page: %w", domain.ErrScrape, err)
	}
	a := htmlquery.FindOne(doc, "//a[@href]")
	if a == nil {
		return ports.ReportStatus{Ready: true}, nil
	}
	href, err := url.Parse(strings.TrimSpace(htmlquery.SelectAttr(a, "href")))
	if err != nil {
		return ports.ReportStatus{}, fmt.Errorf("%w: report link: %w", domain.ErrScrape, err)
	}
	return ports.ReportStatus{Ready: true, Link: s.client.ep.download.ResolveReference(href).String()}, nil
}

func (s *session) Fetch(ctx context.Context, link string, w io.Writer) (int64, error) {
	resp, err := s.client.do(ctx, s.client.http, http.MethodGet, link, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrDownload, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: %w", domain.ErrDownload, &domain.HTTPStatusError{URL: link, StatusCode: resp.StatusCode})
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("%w: %w", domain.ErrDownload, err)
	}
	return n, nil
}

func (s *session) Close() error {
	if hc, ok := s.client.http.(*http.Client); ok {
		hc.CloseIdleConnections()
	}
	return nil
}
