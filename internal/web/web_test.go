package web

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/local/portfoliobinder/internal/portfolio"
	"github.com/local/portfoliobinder/internal/statuscheck"
	"github.com/local/portfoliobinder/internal/storage"
)

func newServer(t *testing.T, opts Options) (*httptest.Server, *http.Client) {
	t.Helper()
	return newServerWith(t, portfolio.Dependencies{}, opts)
}

func newServerWith(t *testing.T, deps portfolio.Dependencies, opts Options) (*httptest.Server, *http.Client) {
	t.Helper()
	r := chi.NewRouter()
	New(portfolio.New(deps, portfolio.Options{}), opts).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, _ := cookiejar.New(nil)
	return srv, &http.Client{Jar: jar}
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var b bytes.Buffer
	_, _ = b.ReadFrom(resp.Body)
	return b.String()
}

func TestDashboardFlow(t *testing.T) {
	status := func(context.Context) statuscheck.Summary {
		return statuscheck.Summary{MuPDF: statuscheck.Status{OK: true, Message: "Available"}}
	}
	srv, client := newServer(t, Options{Status: status})

	resp, err := client.Get(srv.URL + "/web/")
	if err != nil {
		t.Fatal(err)
	}
	if page := body(t, resp); !strings.Contains(page, "No files yet") || !strings.Contains(page, "Available") {
		t.Fatalf("dashboard:\n%s", page)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range map[string]string{"notes.txt": "hello", "plan.dwg": "AC1027"} {
		fw, _ := mw.CreateFormFile("files", name)
		_, _ = fw.Write([]byte(data))
	}
	_ = mw.Close()
	resp, err = client.Post(srv.URL+"/web/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	page := body(t, resp)
	for _, want := range []string{"2 file(s) added", "notes.txt", "plan.dwg", "DWG"} {
		if !strings.Contains(page, want) {
			t.Errorf("dashboard lacks %q", want)
		}
	}

	resp, err = client.PostForm(srv.URL+"/web/construct", url.Values{"filename": {"out"}, "include_toc": {"on"}})
	if err != nil {
		t.Fatal(err)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "out.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if pdf := body(t, resp); !strings.HasPrefix(pdf, "%PDF") {
		t.Error("construct did not return a PDF")
	}

	resp, err = client.PostForm(srv.URL+"/web/items/5/remove", nil)
	if err != nil {
		t.Fatal(err)
	}
	if page := body(t, resp); !strings.Contains(page, "out of range") {
		t.Error("out of range removal not reported")
	}
}

func TestLoginRequired(t *testing.T) {
	srv, client := newServer(t, Options{Username: "u", Password: "p"})

	resp, err := client.Get(srv.URL + "/web/dashboard")
	if err != nil {
		t.Fatal(err)
	}
	if page := body(t, resp); !strings.Contains(page, "Sign in") {
		t.Fatal("unauthenticated request was not sent to login")
	}

	resp, err = client.PostForm(srv.URL+"/web/login", url.Values{"username": {"u"}, "password": {"wrong"}})
	if err != nil {
		t.Fatal(err)
	}
	if page := body(t, resp); !strings.Contains(page, "invalid credentials") {
		t.Error("bad password accepted")
	}

	resp, err = client.PostForm(srv.URL+"/web/login", url.Values{"username": {"u"}, "password": {"p"}})
	if err != nil {
		t.Fatal(err)
	}
	if page := body(t, resp); !strings.Contains(page, "Portfolio Binder") || !strings.Contains(page, "Log out") {
		t.Error("login did not reach the dashboard")
	}
}

func TestForgedAuthCookieIsRejected(t *testing.T) {
	srv, _ := newServer(t, Options{Username: "u", Password: "p"})
	for _, c := range []*http.Cookie{
		{Name: "auth", Value: "1"},
		{Name: authCookie, Value: "1"},
		{Name: authCookie, Value: "6f1c2a4e-0000-4000-8000-000000000000"},
	} {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/web/dashboard", nil)
		req.AddCookie(c)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		if page := body(t, resp); !strings.Contains(page, "Sign in") {
			t.Errorf("cookie %s=%s reached the dashboard", c.Name, c.Value)
		}
	}
}

func TestLogoutRevokesLogin(t *testing.T) {
	srv, client := newServer(t, Options{Username: "u", Password: "p"})
	resp, err := client.PostForm(srv.URL+"/web/login", url.Values{"username": {"u"}, "password": {"p"}})
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)

	u, _ := url.Parse(srv.URL + "/web/dashboard")
	var token *http.Cookie
	for _, c := range client.Jar.Cookies(u) {
		if c.Name == authCookie {
			token = c
		}
	}
	if token == nil || token.Value == "" {
		t.Fatal("login did not set a token")
	}

	resp, err = client.Get(srv.URL + "/web/logout")
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/web/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: authCookie, Value: token.Value})
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if page := body(t, resp); !strings.Contains(page, "Sign in") {
		t.Error("token still valid after logout")
	}
}

func TestArchivedBuildDownload(t *testing.T) {
	srv, client := newServerWith(t, portfolio.Dependencies{Archive: storage.NewLocal(t.TempDir(), "pw")}, Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("files", "notes.txt")
	_, _ = fw.Write([]byte("hello"))
	_ = mw.Close()
	resp, err := client.Post(srv.URL+"/web/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if page := body(t, resp); !strings.Contains(page, "Plain text file") {
		t.Error("dashboard lacks the sniffed description")
	}

	resp, err = client.PostForm(srv.URL+"/web/construct", url.Values{"filename": {"kept"}})
	if err != nil {
		t.Fatal(err)
	}
	built := body(t, resp)
	id := resp.Header.Get("X-Build-ID")

	resp, err = client.Get(srv.URL + "/web/dashboard")
	if err != nil {
		t.Fatal(err)
	}
	page := body(t, resp)
	i := strings.Index(page, "/web/builds/")
	if i < 0 {
		t.Fatal("dashboard lacks an archive link")
	}
	link := page[i:]
	link = link[:strings.Index(link, `"`)]
	if id == "" || !strings.Contains(link, id) {
		t.Errorf("link %q does not name build %s", link, id)
	}

	resp, err = client.Get(srv.URL + link)
	if err != nil {
		t.Fatal(err)
	}
	if got := body(t, resp); got != built {
		t.Errorf("archived copy differs from the constructed PDF (%d vs %d bytes)", len(got), len(built))
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "kept.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	resp, err = client.Get(srv.URL + "/web/builds/unknown/pdf")
	if err != nil {
		t.Fatal(err)
	}
	body(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown build status = %d", resp.StatusCode)
	}
}

func TestHumanBytes(t *testing.T) {
	for n, want := range map[int]string{0: "0 B", 1023: "1023 B", 1024: "1 KB", 1536: "1.5 KB", 3 << 20: "3 MB"} {
		if got := humanBytes(n); got != want {
			t.Errorf("humanBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
