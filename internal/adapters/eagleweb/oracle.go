package eagleweb

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

var (
	paginationExpr = xpath.MustCompile(`//*[@id='middle']//text()[starts-with(normalize-space(.),'Showing')]`)
	resultRowExpr  = xpath.MustCompile(`//*[@id='middle']//table//tr[td]`)
	pagesPattern   = regexp.MustCompile(`(\d+) page`)
)

// Oracle answers page-count queries from the search results page.
// One signed-in session is reused across queries and replaced after an error.
type Oracle struct {
	cfg       Config
	tenant    domain.Tenant
	transport http.RoundTripper
	logger    ports.Logger

	mu     sync.Mutex
	client *client
}

// NewOracle creates a page-count oracle for tenant.
func NewOracle(cfg Config, tenant domain.Tenant, transport http.RoundTripper, logger ports.Logger) *Oracle {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Oracle{cfg: cfg, tenant: tenant, transport: transport, logger: logger}
}

// PageCount implements ports.PageCounter.
func (o *Oracle) PageCount(ctx context.Context, q domain.Query) (domain.PageCount, error) {
	if err := q.Validate(); err != nil {
		return domain.PageCount{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	c, err := o.session(ctx)
	if err != nil {
		return domain.PageCount{}, err
	}
	page, err := c.search(ctx, q)
	if err != nil {
		o.client = nil
		return domain.PageCount{}, err
	}

	pc, err := parsePageCount(page, q.End == nil)
	if err != nil {
		o.client = nil
		return domain.PageCount{}, err
	}
	o.logger.Debug("page count",
		ports.Stringer("query", q),
		ports.Int64("pages", pc.Pages),
	)
	return pc, nil
}

func (o *Oracle) session(ctx context.Context) (*client, error) {
	if o.client != nil {
		return o.client, nil
	}
	ep, err := o.cfg.resolve(o.tenant)
	if err != nil {
		return nil, err
	}
	c, err := newClient(o.cfg, ep, o.transport)
	if err != nil {
		return nil, err
	}
	if err := c.signIn(ctx); err != nil {
		return nil, err
	}
	o.client = c
	return c, nil
}

// parsePageCount reads the pagination summary, e.g.
// "Showing 1-10 of 370 results on 37 pages". A page reporting no results
// has zero pages. Rows are counted only when countRows is set.
func parsePageCount(page string, countRows bool) (domain.PageCount, error) {
	if strings.Contains(page, noResultsMarker) {
		return domain.PageCount{}, nil
	}

	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return domain.PageCount{}, fmt.Errorf("%w: parse results: %w", domain.ErrScrape, err)
	}

	pc := domain.PageCount{}
	nav := htmlquery.QuerySelector(doc, paginationExpr)
	if nav == nil {
		return domain.PageCount{}, fmt.Errorf("%w: no pagination summary on results page", domain.ErrScrape)
	}
	m := pagesPattern.FindStringSubmatch(htmlquery.InnerText(nav))
	if m == nil {
		return domain.PageCount{}, fmt.Errorf("%w: no page total in %q", domain.ErrScrape, strings.TrimSpace(htmlquery.InnerText(nav)))
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return domain.PageCount{}, fmt.Errorf("%w: page count %q: %w", domain.ErrScrape, m[1], err)
	}
	pc.Pages = n

	if countRows {
		pc.RecordsPerPage = len(htmlquery.QuerySelectorAll(doc, resultRowExpr))
	}
	return pc, nil
}
