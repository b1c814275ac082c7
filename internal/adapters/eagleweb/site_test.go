package eagleweb

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// testSite serves a guest-only EagleWeb site over account IDs [0, n).
type testSite struct {
	n       int64
	perPage int64

	mu         sync.Mutex
	searches   int
	signIns    int
	pollsLeft  map[string]int
	lastSearch map[string][2]*int64
	readyPolls int
	noLink     bool
	hideTotal  bool
}

func newTestSite(t *testing.T, n, perPage int64) (*testSite, *httptest.Server) {
	t.Helper()
	s := &testSite{
		n:          n,
		perPage:    perPage,
		pollsLeft:  map[string]int{},
		lastSearch: map[string][2]*int64{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/assessor/web/", s.init)
	mux.HandleFunc("/assessor/web/loginPOST.jsp", s.login)
	mux.HandleFunc("/assessor/taxweb/results.jsp", s.results)
	mux.HandleFunc("/assessor/eagleweb/report.jsp", s.report)
	mux.HandleFunc("/assessor/eagleweb/download/", s.download)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *testSite) init(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.signIns++
	id := strconv.Itoa(s.signIns)
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: id, Path: "/"})
	fmt.Fprint(w, "<html><body>welcome</body></html>")
}

func (s *testSite) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.FormValue("guest") != "true" || sessionID(r) == "" {
		http.Error(w, "bad login", http.StatusForbidden)
		return
	}
	s.mu.Lock()
	s.pollsLeft[sessionID(r)] = s.readyPolls
	s.mu.Unlock()
	http.Redirect(w, r, "/assessor/web/", http.StatusFound)
}

func (s *testSite) results(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if sid == "" {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	start, end := formBound(r.FormValue("accountValueIDStart")), formBound(r.FormValue("accountValueIDEnd"))

	s.mu.Lock()
	s.searches++
	s.lastSearch[sid] = [2]*int64{start, end}
	hideTotal := s.hideTotal
	s.mu.Unlock()

	lo, hi := int64(0), s.n-1
	if start != nil && *start > lo {
		lo = *start
	}
	if end != nil && *end < hi {
		hi = *end
	}
	count := hi - lo + 1
	if count <= 0 {
		fmt.Fprint(w, `<html><body><div id="middle">No results found for query</div></body></html>`)
		return
	}
	pages := (count + s.perPage - 1) / s.perPage

	var b strings.Builder
	b.WriteString(`<html><body><div id="middle"><p>`)
	if hideTotal {
		fmt.Fprintf(&b, "Showing 1-%d of %d results", min(count, s.perPage), count)
	} else {
		fmt.Fprintf(&b, "Showing 1-%d of %d results on %d pages", min(count, s.perPage), count, pages)
	}
	b.WriteString(`</p><table><tr><th>Account</th></tr>`)
	for id := lo; id < lo+min(count, s.perPage); id++ {
		fmt.Fprintf(&b, "<tr><td>R%07d</td></tr>", id)
	}
	b.WriteString(`</table></div></body></html>`)
	fmt.Fprint(w, b.String())
}

func (s *testSite) report(w http.ResponseWriter, r *http.Request) {
	sid := sessionID(r)
	if r.URL.Query().Get("generate") == "true" {
		if r.URL.Query().Get("templateId") != DefaultTemplateID {
			http.Error(w, "unknown template", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, "<html><body>Your report is being generated</body></html>")
		return
	}

	s.mu.Lock()
	left := s.pollsLeft[sid]
	if left > 0 {
		s.pollsLeft[sid] = left - 1
	}
	noLink := s.noLink
	s.mu.Unlock()
	if left > 0 {
		fmt.Fprint(w, "<html><body>Your report is being generated. Please wait.</body></html>")
		return
	}
	if noLink {
		fmt.Fprint(w, "<html><body>Report ready</body></html>")
		return
	}
	fmt.Fprintf(w, `<html><body><table><tr><td><a href="download/%s.csv">Download</a></td></tr></table></body></html>`, sid)
}

func (s *testSite) download(w http.ResponseWriter, r *http.Request) {
	sid := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/assessor/eagleweb/download/"), ".csv")
	if sid != sessionID(r) {
		http.Error(w, "wrong session", http.StatusForbidden)
		return
	}
	s.mu.Lock()
	q := s.lastSearch[sid]
	s.mu.Unlock()

	lo, hi := int64(0), s.n-1
	if q[0] != nil && *q[0] > lo {
		lo = *q[0]
	}
	if q[1] != nil && *q[1] < hi {
		hi = *q[1]
	}
	fmt.Fprint(w, "account,owner\n")
	for id := lo; id <= hi; id++ {
		fmt.Fprintf(w, "R%07d,owner %d\n", id, id)
	}
}

func sessionID(r *http.Request) string {
	c, err := r.Cookie("JSESSIONID")
	if err != nil {
		return ""
	}
	return c.Value
}

func formBound(v string) *int64 {
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func (s *testSite) set(fn func(s *testSite)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *testSite) stats() (signIns, searches, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signIns, s.searches, len(s.lastSearch)
}

func testConfig(srv *httptest.Server) Config {
	cfg := DefaultConfig()
	cfg.SiteURL = srv.URL
	return cfg
}
