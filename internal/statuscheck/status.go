package statuscheck

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/local/portfoliobinder/internal/mupdf"
	"github.com/local/portfoliobinder/internal/pdfgen"
)

// Pinger models a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker aggregates health checks for the dependencies used by the service.
type Checker struct {
	redis          Pinger
	archive        Pinger
	archiveBackend string
}

// Options configures the Checker. A nil Redis or Archive means the
// dependency is not configured.
type Options struct {
	Redis          Pinger
	Archive        Pinger
	ArchiveBackend string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis   Status `json:"redis"`
	Archive Status `json:"archive"`
	MuPDF   Status `json:"mupdf"`
}

// Healthy reports whether every configured subsystem is up.
func (s Summary) Healthy() bool {
	return s.MuPDF.OK && (s.Redis.OK || s.Redis.Message == notConfigured) && (s.Archive.OK || s.Archive.Message == notConfigured)
}

const notConfigured = "Not configured"

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, archive: opts.Archive, archiveBackend: opts.ArchiveBackend}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:   c.check(ctx, c.redis, 2*time.Second, "Connected"),
		Archive: c.checkArchive(ctx),
		MuPDF:   checkMuPDF(),
	}
}

func (c *Checker) check(ctx context.Context, p Pinger, timeout time.Duration, okMsg string) Status {
	if p == nil {
		return Status{OK: false, Message: notConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: okMsg}
}

func (c *Checker) checkArchive(ctx context.Context) Status {
	st := c.check(ctx, c.archive, 5*time.Second, "Connected")
	if c.archiveBackend != "" && st.Message != notConfigured {
		st.Message = fmt.Sprintf("%s: %s", c.archiveBackend, st.Message)
	}
	return st
}

// checkMuPDF renders a generated one-page document.
func checkMuPDF() Status {
	doc, err := pdfgen.PlaceholderPage("status")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if mupdf.Thumbnail(doc, 0.1) == nil {
		return Status{OK: false, Message: "Render failed"}
	}
	return Status{OK: true, Message: "Available"}
}

// DirWritable returns a Pinger that checks dir can be created and written.
func DirWritable(dir string) Pinger {
	return PingFunc(func(context.Context) error {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		f, err := os.CreateTemp(dir, ".status-*")
		if err != nil {
			return err
		}
		name := f.Name()
		f.Close()
		return os.Remove(name)
	})
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
