package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Metadata describes an archived portfolio.
type Metadata struct {
	Filename    string
	BuildID     string
	SessionID   string
	PageCount   int
	Attachments int
	Created     time.Time
}

func (m Metadata) fields() map[string]string {
	return map[string]string{
		"name":         m.Filename,
		"build_id":     m.BuildID,
		"session_id":   m.SessionID,
		"page_count":   fmt.Sprint(m.PageCount),
		"attachments":  fmt.Sprint(m.Attachments),
		"created":      m.Created.UTC().Format(time.RFC3339),
		"content-type": "application/pdf",
	}
}

// ErrNotArchived is returned by Open when nothing is stored at a location.
var ErrNotArchived = errors.New("portfolio is not archived")

// Archive keeps a copy of every constructed portfolio.
type Archive interface {
	// Save stores pdf and returns a location a human can follow (path or s3:// URL).
	Save(ctx context.Context, pdf []byte, meta Metadata) (string, error)
	// Open reads back the PDF saved at location, decrypting it when needed.
	Open(ctx context.Context, location string) ([]byte, error)
	Backend() string
}

// Key is the object key a portfolio is archived under, without version suffix.
func Key(prefix string, meta Metadata) string {
	name := strings.TrimSuffix(filepath.Base(meta.Filename), filepath.Ext(meta.Filename))
	k := fmt.Sprintf("%s/%s_%s", meta.Created.UTC().Format("2006/01/02"), meta.BuildID, name)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		k = prefix + "/" + k
	}
	return k
}

// Nop discards everything.
type Nop struct{}

func (Nop) Save(context.Context, []byte, Metadata) (string, error) { return "", nil }
func (Nop) Open(context.Context, string) ([]byte, error)           { return nil, ErrNotArchived }
func (Nop) Backend() string                                        { return "none" }

// Local writes portfolios below a directory, encrypted when a password is set.
type Local struct {
	Dir      string
	Password string
}

// NewLocal returns a local archive rooted at dir ("uploads/portfolios" when empty).
func NewLocal(dir, password string) *Local {
	if dir == "" {
		dir = filepath.Join("uploads", "portfolios")
	}
	return &Local{Dir: dir, Password: password}
}

func (l *Local) Backend() string { return "local" }

func (l *Local) Save(ctx context.Context, pdf []byte, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, ext := pdf, ".pdf"
	if l.Password != "" {
		enc, err := Encrypt(pdf, l.Password)
		if err != nil {
			return "", err
		}
		data, ext = enc, ".pdf.enc"
	}
	p := filepath.Join(l.Dir, filepath.FromSlash(Key("", meta))+ext)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return p, nil
}

func (l *Local) Open(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(l.Dir, location)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %s is outside %s", ErrNotArchived, location, l.Dir)
	}
	data, err := os.ReadFile(location)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotArchived
	}
	if err != nil {
		return nil, err
	}
	return openStored(data, l.Password)
}
