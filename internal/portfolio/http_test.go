package portfolio

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"

	"github.com/local/portfoliobinder/internal/pdfinfo"
	"github.com/local/portfoliobinder/internal/store"
)

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
	sid string
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(New(Dependencies{}, Options{}), HandlerOptions{UploadRate: 1000}).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c := &apiClient{t: t, srv: srv}
	resp := c.do(http.MethodPost, "/api/sessions", nil, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: %d", resp.StatusCode)
	}
	var out map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	c.sid = out["session_id"]
	if c.sid == "" {
		t.Fatal("no session id")
	}
	return c
}

func (c *apiClient) do(method, path string, body []byte, contentType string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		c.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.sid != "" {
		req.Header.Set(SessionHeader, c.sid)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	return resp
}

func (c *apiClient) upload(files map[string][]byte, order ...string) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			c.t.Fatal(err)
		}
		_, _ = fw.Write(files[name])
	}
	_ = mw.Close()
	return c.do(http.MethodPost, "/api/binder/files", buf.Bytes(), mw.FormDataContentType())
}

func decodeBinder(t *testing.T, resp *http.Response) binderView {
	t.Helper()
	defer resp.Body.Close()
	var v binderView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func viewNames(v binderView) []string {
	var out []string
	for _, it := range v.Items {
		out = append(out, it.Name)
	}
	return out
}

func TestAPIRoundTrip(t *testing.T) {
	c := newAPI(t)

	resp := c.upload(map[string][]byte{
		"a.pdf": pdfWithPages(t, 2),
		"b.png": pngBytes(t),
		"c.zip": zipBytes(t),
		"d.png": []byte("not an image"),
	}, "a.pdf", "c.zip", "b.png", "d.png")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var up struct {
		Added  int             `json:"added"`
		Failed []uploadFailure `json:"failed"`
		Binder binderView      `json:"binder"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&up)
	resp.Body.Close()
	if up.Added != 3 || len(up.Failed) != 1 || up.Failed[0].Filename != "d.png" {
		t.Errorf("upload response = %+v", up)
	}
	if d := cmp.Diff([]string{"a.pdf", "c.zip", "b.png"}, viewNames(up.Binder)); d != "" {
		t.Errorf("binder (-want +got):\n%s", d)
	}
	if up.Binder.Items[2].TOCNumber != 2 || up.Binder.Items[1].Mode != "attachment" || up.Binder.Items[0].Description != "PDF document" {
		t.Errorf("items = %+v", up.Binder.Items)
	}

	v := decodeBinder(t, c.do(http.MethodPost, "/api/binder/items/2/move?direction=previous", nil, ""))
	if d := cmp.Diff([]string{"a.pdf", "b.png", "c.zip"}, viewNames(v)); d != "" {
		t.Errorf("after move (-want +got):\n%s", d)
	}

	resp = c.do(http.MethodGet, "/api/binder/items/0/preview", nil, "")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("preview: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	resp.Body.Close()
	resp = c.do(http.MethodGet, "/api/binder/items/2/preview", nil, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("attachment preview status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = c.do(http.MethodPost, "/api/binder/construct", []byte("include_toc=on&filename=mine"), "application/x-www-form-urlencoded")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("construct status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "mine.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var pdf bytes.Buffer
	_, _ = pdf.ReadFrom(resp.Body)
	resp.Body.Close()
	if n, err := pdfinfo.PageCount(pdf.Bytes()); err != nil || n != 4 {
		t.Errorf("constructed pages = %d, %v", n, err)
	}

	buildID := resp.Header.Get("X-Build-ID")
	resp = c.do(http.MethodGet, "/api/builds/"+buildID, nil, "")
	var rec store.Build
	_ = json.NewDecoder(resp.Body).Decode(&rec)
	resp.Body.Close()
	if rec.ID != buildID || rec.PageCount != 4 || rec.Filename != "mine.pdf" {
		t.Errorf("build record = %+v", rec)
	}
	resp = c.do(http.MethodGet, "/api/builds/"+buildID+"/pdf", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("download without archive status = %d, want 404", resp.StatusCode)
	}

	v = decodeBinder(t, c.do(http.MethodDelete, "/api/binder/items/0", nil, ""))
	if d := cmp.Diff([]string{"b.png", "c.zip"}, viewNames(v)); d != "" {
		t.Errorf("after remove (-want +got):\n%s", d)
	}
	v = decodeBinder(t, c.do(http.MethodDelete, "/api/binder", nil, ""))
	if len(v.Items) != 0 {
		t.Errorf("after clear: %v", viewNames(v))
	}
}

func TestAPIErrors(t *testing.T) {
	c := newAPI(t)
	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"index out of range", http.MethodDelete, "/api/binder/items/3", http.StatusBadRequest},
		{"bad index", http.MethodPost, "/api/binder/items/x/move?direction=next", http.StatusBadRequest},
		{"bad direction", http.MethodPost, "/api/binder/items/0/move?direction=sideways", http.StatusBadRequest},
		{"move out of range", http.MethodPost, "/api/binder/items/0/move?direction=next", http.StatusBadRequest},
		{"unknown build", http.MethodGet, "/api/builds/nope", http.StatusNotFound},
		{"unknown build pdf", http.MethodGet, "/api/builds/nope/pdf", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := c.do(tc.method, tc.path, nil, "")
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	c.sid = "unknown"
	resp := c.do(http.MethodGet, "/api/binder", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d", resp.StatusCode)
	}
}

func TestAPIUploadAllRejected(t *testing.T) {
	c := newAPI(t)
	resp := c.upload(map[string][]byte{"x.jpg": []byte("nope")}, "x.jpg")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestAPIConstructJSON(t *testing.T) {
	c := newAPI(t)
	resp := c.do(http.MethodPost, "/api/binder/construct", []byte(`{"include_toc":false}`), "application/json")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, DefaultFilename) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if resp.Header.Get("X-Page-Count") != "1" {
		t.Errorf("X-Page-Count = %q", resp.Header.Get("X-Page-Count"))
	}
}
