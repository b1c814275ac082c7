package eagleweb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/bft-labs/harvester/internal/domain"
	"github.com/bft-labs/harvester/internal/ports"
)

// maxPageBytes caps how much of an HTML page is read.
const maxPageBytes = 8 << 20

// client is one cookie-bound conversation with the site.
type client struct {
	cfg        Config
	ep         endpoints
	http       ports.HTTPClient
	noRedirect ports.HTTPClient
}

func newClient(cfg Config, ep endpoints, transport http.RoundTripper) (*client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	hc := &http.Client{Transport: transport, Jar: jar, Timeout: cfg.Timeout}
	nr := &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &client{cfg: cfg, ep: ep, http: hc, noRedirect: nr}, nil
}

// signIn opens the site and enters as a guest.
func (c *client) signIn(ctx context.Context) error {
	if _, err := c.get(ctx, c.ep.init); err != nil {
		return fmt.Errorf("open site: %w", err)
	}
	if c.ep.login == "" {
		return nil
	}
	form := url.Values{"guest": {"true"}, "submit": {"Enter EagleWeb"}}
	resp, err := c.do(ctx, c.noRedirect, http.MethodPost, c.ep.login, form)
	if err != nil {
		return fmt.Errorf("guest sign-in: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 400 {
		return &domain.HTTPStatusError{URL: c.ep.login, StatusCode: resp.StatusCode}
	}
	return nil
}

// search submits the account-ID range form and returns the result page.
func (c *client) search(ctx context.Context, q domain.Query) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	form := url.Values{}
	if q.Start != nil {
		form.Set("accountValueIDStart", strconv.FormatInt(*q.Start, 10))
	}
	if q.End != nil {
		form.Set("accountValueIDEnd", strconv.FormatInt(*q.End, 10))
	}
	return c.post(ctx, c.ep.search, form)
}

func (c *client) get(ctx context.Context, u string) (string, error) {
	resp, err := c.do(ctx, c.http, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	return readPage(u, resp)
}

func (c *client) post(ctx context.Context, u string, form url.Values) (string, error) {
	resp, err := c.do(ctx, c.http, http.MethodPost, u, form)
	if err != nil {
		return "", err
	}
	return readPage(u, resp)
}

func (c *client) do(ctx context.Context, hc ports.HTTPClient, method, u string, form url.Values) (*http.Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	return hc.Do(req)
}

// readPage returns the body of a successful response.
func readPage(u string, resp *http.Response) (string, error) {
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &domain.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u, err)
	}
	return string(data), nil
}
