package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"errors"
	"html/template"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/portfoliobinder/internal/binder"
	"github.com/local/portfoliobinder/internal/portfolio"
	"github.com/local/portfoliobinder/internal/statuscheck"
)

//go:embed templates/*.html
var templates embed.FS

// StatusFunc reports dependency status for the dashboard footer.
type StatusFunc func(ctx context.Context) statuscheck.Summary

// Options configures the dashboard. Login is required only when both
// Username and Password are set.
type Options struct {
	Username       string
	Password       string
	MaxUploadBytes int64
	Status         StatusFunc
}

const (
	authCookie = "binder_auth"
	loginTTL   = 12 * time.Hour
)

type Web struct {
	tpl  *template.Template
	svc  *portfolio.Service
	opts Options

	mu     sync.Mutex
	logins map[string]time.Time // token -> expiry
}

func New(svc *portfolio.Service, opts Options) *Web {
	tpl := template.Must(template.New("").Funcs(template.FuncMap{
		"inc":   func(i int) int { return i + 1 },
		"bytes": humanBytes,
	}).ParseFS(templates, "templates/*.html"))
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	return &Web{tpl: tpl, svc: svc, opts: opts, logins: map[string]time.Time{}}
}

func (w *Web) RegisterRoutes(r chi.Router) {
	r.Route("/web", func(r chi.Router) {
		r.Get("/login", w.handleLoginForm)
		r.Post("/login", w.handleLogin)
		r.Get("/logout", w.handleLogout)
		r.Group(func(r chi.Router) {
			r.Use(w.requireAuth)
			r.Get("/", w.handleDashboard)
			r.Get("/dashboard", w.handleDashboard)
			r.Post("/upload", w.handleUpload)
			r.Post("/items/{index}/move", w.handleMove)
			r.Post("/items/{index}/remove", w.handleRemove)
			r.Get("/items/{index}/preview", w.handlePreview)
			r.Post("/clear", w.handleClear)
			r.Post("/construct", w.handleConstruct)
			r.Get("/builds/{id}/pdf", w.handleBuildPDF)
		})
	})
}

func (w *Web) authEnabled() bool { return w.opts.Username != "" && w.opts.Password != "" }

func (w *Web) render(wr http.ResponseWriter, name string, data any) {
	wr.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := w.tpl.ExecuteTemplate(wr, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("render failed")
	}
}

func (w *Web) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(wr http.ResponseWriter, r *http.Request) {
		if w.authEnabled() {
			c, err := r.Cookie(authCookie)
			if err != nil || !w.validLogin(c.Value) {
				http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
				return
			}
		}
		next.ServeHTTP(wr, r)
	})
}

func (w *Web) checkCredentials(user, pass string) bool {
	u := subtle.ConstantTimeCompare([]byte(user), []byte(w.opts.Username))
	p := subtle.ConstantTimeCompare([]byte(pass), []byte(w.opts.Password))
	return u&p == 1
}

// newLogin issues a random token and drops expired ones.
func (w *Web) newLogin() string {
	token := uuid.NewString()
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for t, exp := range w.logins {
		if now.After(exp) {
			delete(w.logins, t)
		}
	}
	w.logins[token] = now.Add(loginTTL)
	return token
}

func (w *Web) validLogin(token string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	exp, ok := w.logins[token]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(w.logins, token)
		return false
	}
	return true
}

func (w *Web) handleLoginForm(wr http.ResponseWriter, r *http.Request) {
	w.render(wr, "login.html", map[string]any{"Error": r.URL.Query().Get("error")})
}

func (w *Web) handleLogin(wr http.ResponseWriter, r *http.Request) {
	if !w.authEnabled() {
		http.Redirect(wr, r, "/web/dashboard", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Redirect(wr, r, "/web/login?error=invalid+form", http.StatusSeeOther)
		return
	}
	if !w.checkCredentials(r.Form.Get("username"), r.Form.Get("password")) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("dashboard login failed")
		http.Redirect(wr, r, "/web/login?error=invalid+credentials", http.StatusSeeOther)
		return
	}
	http.SetCookie(wr, &http.Cookie{
		Name:     authCookie,
		Value:    w.newLogin(),
		Path:     "/web",
		MaxAge:   int(loginTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(wr, r, "/web/dashboard", http.StatusSeeOther)
}

func (w *Web) handleLogout(wr http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(authCookie); err == nil {
		w.mu.Lock()
		delete(w.logins, c.Value)
		w.mu.Unlock()
	}
	http.SetCookie(wr, &http.Cookie{Name: authCookie, Value: "", Path: "/web", MaxAge: -1})
	http.Redirect(wr, r, "/web/login", http.StatusSeeOther)
}

// sessionFor returns the caller's session, starting a new one when the
// cookie is missing or expired.
func (w *Web) sessionFor(wr http.ResponseWriter, r *http.Request) string {
	sid := portfolio.SessionID(r)
	if sid != "" {
		if _, err := w.svc.Sessions().Get(sid); err == nil {
			return sid
		}
	}
	sid = w.svc.NewSession()
	portfolio.SetSessionCookie(wr, sid)
	return sid
}

func redirectDashboard(wr http.ResponseWriter, r *http.Request, msg string, err error) {
	q := url.Values{}
	if msg != "" {
		q.Set("msg", msg)
	}
	if err != nil {
		q.Set("error", err.Error())
	}
	target := "/web/dashboard"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	http.Redirect(wr, r, target, http.StatusSeeOther)
}

type row struct {
	Index     int
	Item      binder.Item
	TOCNumber int
	First     bool
	Last      bool
}

func (w *Web) handleDashboard(wr http.ResponseWriter, r *http.Request) {
	sid := w.sessionFor(wr, r)
	items, err := w.svc.Items(sid)
	if err != nil {
		http.Error(wr, err.Error(), portfolio.StatusFor(err))
		return
	}
	rows := make([]row, len(items))
	var pages int
	for i, it := range items {
		rows[i] = row{Index: i, Item: it, First: i == 0, Last: i == len(items)-1}
		if it.IsPage() {
			pages++
			rows[i].TOCNumber = pages
		}
	}
	builds, _ := w.svc.SessionBuilds(r.Context(), sid)

	data := map[string]any{
		"Rows":        rows,
		"Pages":       pages,
		"Attachments": len(items) - pages,
		"Builds":      builds,
		"Message":     r.URL.Query().Get("msg"),
		"Error":       r.URL.Query().Get("error"),
		"Username":    w.opts.Username,
		"AuthEnabled": w.authEnabled(),
	}
	if w.opts.Status != nil {
		data["Status"] = w.opts.Status(r.Context())
	}
	w.render(wr, "dashboard.html", data)
}

func (w *Web) handleUpload(wr http.ResponseWriter, r *http.Request) {
	sid := w.sessionFor(wr, r)
	r.Body = http.MaxBytesReader(wr, r.Body, w.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		redirectDashboard(wr, r, "", errors.New("invalid upload"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var uploads []portfolio.Upload
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err == nil {
			uploads = append(uploads, portfolio.Upload{Filename: fh.Filename, Data: data})
		}
	}
	if len(uploads) == 0 {
		redirectDashboard(wr, r, "", errors.New("no files selected"))
		return
	}
	added, errs := w.svc.UploadFiles(sid, uploads)
	msg := strconv.Itoa(len(added)) + " file(s) added"
	redirectDashboard(wr, r, msg, errors.Join(errs...))
}

func (w *Web) index(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "index"))
}

func (w *Web) handleMove(wr http.ResponseWriter, r *http.Request) {
	idx, err := w.index(r)
	if err != nil {
		redirectDashboard(wr, r, "", err)
		return
	}
	dir, err := binder.ParseDirection(r.FormValue("direction"))
	if err == nil {
		err = w.svc.Reorder(w.sessionFor(wr, r), idx, dir)
	}
	redirectDashboard(wr, r, "", err)
}

func (w *Web) handleRemove(wr http.ResponseWriter, r *http.Request) {
	idx, err := w.index(r)
	if err == nil {
		var it binder.Item
		it, err = w.svc.Remove(w.sessionFor(wr, r), idx)
		if err == nil {
			redirectDashboard(wr, r, "removed "+it.Name, nil)
			return
		}
	}
	redirectDashboard(wr, r, "", err)
}

func (w *Web) handlePreview(wr http.ResponseWriter, r *http.Request) {
	idx, err := w.index(r)
	if err != nil {
		http.Error(wr, "invalid index", http.StatusBadRequest)
		return
	}
	img, err := w.svc.ItemPreview(w.sessionFor(wr, r), idx)
	if err != nil {
		http.Error(wr, err.Error(), portfolio.StatusFor(err))
		return
	}
	if img == nil {
		wr.WriteHeader(http.StatusNoContent)
		return
	}
	wr.Header().Set("Content-Type", "image/png")
	_, _ = wr.Write(img)
}

func (w *Web) handleClear(wr http.ResponseWriter, r *http.Request) {
	err := w.svc.ClearAll(w.sessionFor(wr, r))
	redirectDashboard(wr, r, "binder cleared", err)
}

func (w *Web) handleConstruct(wr http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		redirectDashboard(wr, r, "", err)
		return
	}
	sid := w.sessionFor(wr, r)
	b, err := w.svc.Construct(r.Context(), sid, r.Form.Get("include_toc") == "on", r.Form.Get("filename"))
	if err != nil {
		redirectDashboard(wr, r, "", err)
		return
	}
	wr.Header().Set("X-Build-ID", b.ID)
	servePDF(wr, b.Filename, b.PDF)
}

func (w *Web) handleBuildPDF(wr http.ResponseWriter, r *http.Request) {
	rec, pdf, err := w.svc.ArchivedPDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(wr, err.Error(), portfolio.StatusFor(err))
		return
	}
	servePDF(wr, rec.Filename, pdf)
}

func servePDF(wr http.ResponseWriter, filename string, pdf []byte) {
	wr.Header().Set("Content-Type", "application/pdf")
	wr.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	_, _ = wr.Write(pdf)
}

func humanBytes(n int) string {
	const unit = 1024
	if n < unit {
		return strconv.Itoa(n) + " B"
	}
	f, suffix := float64(n)/unit, "KB"
	if f >= unit {
		f, suffix = f/unit, "MB"
	}
	return strings.TrimSuffix(strconv.FormatFloat(f, 'f', 1, 64), ".0") + " " + suffix
}
