package portfolio

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"

	"github.com/local/portfoliobinder/internal/binder"
	"github.com/local/portfoliobinder/internal/classifier"
	"github.com/local/portfoliobinder/internal/session"
	"github.com/local/portfoliobinder/internal/storage"
	"github.com/local/portfoliobinder/internal/store"
)

// SessionCookie carries the session id for browser clients.
const SessionCookie = "binder_session"

// SessionHeader carries the session id for API clients.
const SessionHeader = "X-Session-ID"

// HandlerOptions limits request sizes and rates.
type HandlerOptions struct {
	MaxUploadBytes int64
	// UploadRate is the number of upload requests per client IP per minute; 0 disables limiting.
	UploadRate int
}

// Handler serves the JSON API.
type Handler struct {
	svc  *Service
	opts HandlerOptions
}

func NewHandler(svc *Service, opts HandlerOptions) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	return &Handler{svc: svc, opts: opts}
}

// RegisterRoutes mounts the API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)

		r.Get("/binder", h.ListItems)
		r.Delete("/binder", h.ClearAll)
		r.Group(func(r chi.Router) {
			if h.opts.UploadRate > 0 {
				r.Use(httprate.LimitByIP(h.opts.UploadRate, time.Minute))
			}
			r.Post("/binder/files", h.UploadFiles)
		})
		r.Post("/binder/items/{index}/move", h.MoveItem)
		r.Delete("/binder/items/{index}", h.RemoveItem)
		r.Get("/binder/items/{index}/preview", h.PreviewItem)
		r.Post("/binder/construct", h.Construct)
		r.Get("/binder/builds", h.ListBuilds)

		r.Get("/builds/{id}", h.GetBuild)
		r.Get("/builds/{id}/pdf", h.DownloadBuild)
	})
}

type itemView struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Mode        string `json:"mode"`
	Type        string `json:"type"`
	ContentType string `json:"content_type,omitempty"`
	Description string `json:"description,omitempty"`
	PageCount   int    `json:"page_count"`
	Size        int    `json:"size"`
	// TOCNumber is the 1-based position among page items; 0 for attachments.
	TOCNumber int `json:"toc_number,omitempty"`
}

type binderView struct {
	SessionID   string     `json:"session_id"`
	Items       []itemView `json:"items"`
	Pages       int        `json:"pages"`
	Attachments int        `json:"attachments"`
}

func viewItems(sessionID string, items []binder.Item) binderView {
	v := binderView{SessionID: sessionID, Items: make([]itemView, 0, len(items))}
	for i, it := range items {
		iv := itemView{
			Index:       i,
			ID:          it.ID,
			Name:        it.Name,
			Mode:        it.Mode.String(),
			Type:        it.TypeTag,
			ContentType: it.ContentType,
			Description: it.Description,
			PageCount:   it.PageCount,
			Size:        it.Size,
		}
		if it.IsPage() {
			v.Pages++
			iv.TOCNumber = v.Pages
		} else {
			v.Attachments++
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	var ce *classifier.ConversionError
	var ie *binder.IndexError
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, store.ErrNotFound), errors.Is(err, storage.ErrNotArchived):
		return http.StatusNotFound
	case errors.As(err, &ce):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ie):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= 500 {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// SessionID extracts the session id from the header or cookie.
func SessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionHeader)); id != "" {
		return id
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// SetSessionCookie remembers id in the browser.
func SetSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: id, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

func pathIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", raw)
	}
	return i, nil
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := h.svc.NewSession()
	SetSessionCookie(w, id)
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	sid := SessionID(r)
	items, err := h.svc.Items(sid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewItems(sid, items))
}

type uploadFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

func (h *Handler) UploadFiles(w http.ResponseWriter, r *http.Request) {
	sid := SessionID(r)
	if _, err := h.svc.Sessions().Get(sid); err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "invalid multipart: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		http.Error(w, "missing files", http.StatusBadRequest)
		return
	}
	uploads := make([]Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		uploads = append(uploads, Upload{Filename: fh.Filename, Data: data})
	}

	added, errs := h.svc.UploadFiles(sid, uploads)
	failures := make([]uploadFailure, 0, len(errs))
	for _, err := range errs {
		f := uploadFailure{Error: err.Error()}
		var ce *classifier.ConversionError
		if errors.As(err, &ce) {
			f.Filename = ce.Filename
		}
		failures = append(failures, f)
	}
	items, err := h.svc.Items(sid)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if len(added) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]any{
		"added":  len(added),
		"failed": failures,
		"binder": viewItems(sid, items),
	})
}

func (h *Handler) MoveItem(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dir, err := binder.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sid := SessionID(r)
	if err := h.svc.Reorder(sid, idx, dir); err != nil {
		writeError(w, err)
		return
	}
	h.ListItems(w, r)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.svc.Remove(SessionID(r), idx); err != nil {
		writeError(w, err)
		return
	}
	h.ListItems(w, r)
}

func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearAll(SessionID(r)); err != nil {
		writeError(w, err)
		return
	}
	h.ListItems(w, r)
}

func (h *Handler) PreviewItem(w http.ResponseWriter, r *http.Request) {
	idx, err := pathIndex(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	img, err := h.svc.ItemPreview(SessionID(r), idx)
	if err != nil {
		writeError(w, err)
		return
	}
	if img == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img)
}

type constructReq struct {
	IncludeTOC bool   `json:"include_toc"`
	Filename   string `json:"filename"`
}

func parseConstruct(r *http.Request) (constructReq, error) {
	var req constructReq
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, fmt.Errorf("invalid json: %w", err)
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, fmt.Errorf("invalid form: %w", err)
	}
	req.Filename = r.Form.Get("filename")
	switch strings.ToLower(r.Form.Get("include_toc")) {
	case "1", "true", "on", "yes":
		req.IncludeTOC = true
	}
	return req, nil
}

func (h *Handler) Construct(w http.ResponseWriter, r *http.Request) {
	req, err := parseConstruct(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := h.svc.Construct(r.Context(), SessionID(r), req.IncludeTOC, req.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Build-ID", b.ID)
	w.Header().Set("X-Page-Count", strconv.Itoa(b.PageCount))
	writePDF(w, b.Filename, b.PDF)
}

func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.BuildRecord(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writePDF(w http.ResponseWriter, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

// DownloadBuild serves the archived copy of a build.
func (h *Handler) DownloadBuild(w http.ResponseWriter, r *http.Request) {
	rec, pdf, err := h.svc.ArchivedPDF(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Build-ID", rec.ID)
	writePDF(w, rec.Filename, pdf)
}

func (h *Handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.SessionBuilds(r.Context(), SessionID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []store.Build{}
	}
	writeJSON(w, http.StatusOK, recs)
}
