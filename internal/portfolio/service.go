package portfolio

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/portfoliobinder/internal/binder"
	"github.com/local/portfoliobinder/internal/classifier"
	"github.com/local/portfoliobinder/internal/composer"
	"github.com/local/portfoliobinder/internal/metrics"
	"github.com/local/portfoliobinder/internal/mupdf"
	"github.com/local/portfoliobinder/internal/session"
	"github.com/local/portfoliobinder/internal/storage"
	"github.com/local/portfoliobinder/internal/store"
)

// DefaultFilename names the output when the caller gives none.
const DefaultFilename = "Project_Portfolio.pdf"

// Upload is one file received from a client.
type Upload struct {
	Filename string
	Data     []byte
}

// Build is the result of Construct: the stored record plus the PDF bytes.
type Build struct {
	store.Build
	PDF []byte `json:"-"`
}

// Options tunes the service. Zero values select the defaults.
type Options struct {
	DefaultFilename string
	TOCTitle        string
	PreviewScale    float64
}

// Dependencies are the collaborators of a Service. Builds and Archive may be nil.
type Dependencies struct {
	Sessions   *session.Registry
	Classifier *classifier.Classifier
	Builds     store.Builds
	Archive    storage.Archive
}

// Service exposes binder operations per session.
type Service struct {
	deps Dependencies
	opts Options
}

func New(deps Dependencies, opts Options) *Service {
	if deps.Sessions == nil {
		deps.Sessions = session.NewRegistry(session.DefaultTTL)
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New()
	}
	if deps.Builds == nil {
		deps.Builds = store.NewMemory()
	}
	if deps.Archive == nil {
		deps.Archive = storage.Nop{}
	}
	if opts.DefaultFilename == "" {
		opts.DefaultFilename = DefaultFilename
	}
	if opts.PreviewScale <= 0 {
		opts.PreviewScale = mupdf.DefaultThumbnailScale
	}
	return &Service{deps: deps, opts: opts}
}

// Sessions returns the registry backing the service.
func (s *Service) Sessions() *session.Registry { return s.deps.Sessions }

// NewSession starts a session and returns its id.
func (s *Service) NewSession() string {
	id := s.deps.Sessions.Create().ID
	metrics.SetActiveSessions(s.deps.Sessions.Len())
	return id
}

// Items returns a snapshot of the session's binder.
func (s *Service) Items(sessionID string) ([]binder.Item, error) {
	var items []binder.Item
	err := s.deps.Sessions.With(sessionID, func(b *binder.Binder) error {
		items = b.Items()
		return nil
	})
	return items, err
}

// UploadFiles classifies each upload independently and appends the ones that
// succeed, in upload order. Failures are reported per file; they never stop
// the remaining files. An unknown session fails every upload.
func (s *Service) UploadFiles(sessionID string, uploads []Upload) ([]binder.Item, []error) {
	if _, err := s.deps.Sessions.Get(sessionID); err != nil {
		errs := make([]error, len(uploads))
		for i := range errs {
			errs[i] = err
		}
		return nil, errs
	}

	var (
		added []binder.Item
		errs  []error
	)
	for _, up := range uploads {
		item, err := s.deps.Classifier.Classify(up.Filename, up.Data)
		if err != nil {
			log.Warn().Err(err).Str("session", sessionID).Str("file", up.Filename).Str("ext", classifier.Extension(up.Filename)).Msg("upload rejected")
			metrics.IncUpload("rejected", s.deps.Classifier.Kind(up.Filename), "error")
			errs = append(errs, err)
			continue
		}
		added = append(added, item)
	}
	if len(added) == 0 {
		return nil, errs
	}

	err := s.deps.Sessions.With(sessionID, func(b *binder.Binder) error {
		for _, it := range added {
			b.Append(it)
		}
		return nil
	})
	if err != nil {
		return nil, append(errs, err)
	}
	for _, it := range added {
		metrics.IncUpload(it.Mode.String(), s.deps.Classifier.Kind(it.Name), "success")
		log.Info().Str("session", sessionID).Str("file", it.Name).Str("mode", it.Mode.String()).Str("type", it.TypeTag).Msg("item added")
	}
	return added, errs
}

// Reorder swaps the item at index with its neighbour in direction.
func (s *Service) Reorder(sessionID string, index int, dir binder.Direction) error {
	return s.deps.Sessions.With(sessionID, func(b *binder.Binder) error {
		return b.Move(index, dir)
	})
}

// Remove deletes the item at index and returns it.
func (s *Service) Remove(sessionID string, index int) (binder.Item, error) {
	var removed binder.Item
	err := s.deps.Sessions.With(sessionID, func(b *binder.Binder) error {
		var err error
		removed, err = b.RemoveAt(index)
		return err
	})
	return removed, err
}

// ClearAll empties the session's binder.
func (s *Service) ClearAll(sessionID string) error {
	return s.deps.Sessions.With(sessionID, func(b *binder.Binder) error {
		b.Clear()
		return nil
	})
}

// OutputFilename applies the default name and the ".pdf" suffix.
func OutputFilename(name, def string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = def
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

// Construct composes the session's current items into one PDF. The binder is
// left unchanged. A build record is written and the PDF archived; failures of
// either are logged and do not fail the construct.
func (s *Service) Construct(ctx context.Context, sessionID string, includeTOC bool, outputFilename string) (*Build, error) {
	items, err := s.Items(sessionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rec := store.Build{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Filename:   OutputFilename(outputFilename, s.opts.DefaultFilename),
		IncludeTOC: includeTOC,
		Start:      &start,
	}

	res, err := composer.Compose(items, composer.Options{IncludeTOC: includeTOC, TOCTitle: s.opts.TOCTitle})
	end := time.Now()
	rec.End = &end
	if err != nil {
		metrics.ObserveConstruct("error", includeTOC, 0, end.Sub(start))
		rec.Status, rec.Message = store.StatusFailed, err.Error()
		s.saveRecord(ctx, rec)
		log.Error().Err(err).Str("session", sessionID).Str("build", rec.ID).Msg("construct failed")
		return nil, err
	}
	metrics.ObserveConstruct("success", includeTOC, res.PageCount, end.Sub(start))

	rec.Status = store.StatusCompleted
	rec.PageCount = res.PageCount
	rec.Attachments = res.Attachments
	rec.Size = len(res.PDF)

	loc, err := s.deps.Archive.Save(ctx, res.PDF, storage.Metadata{
		Filename:    rec.Filename,
		BuildID:     rec.ID,
		SessionID:   sessionID,
		PageCount:   res.PageCount,
		Attachments: len(res.Attachments),
		Created:     start,
	})
	backend := s.deps.Archive.Backend()
	switch {
	case err != nil:
		metrics.IncArchive(backend, "error")
		log.Warn().Err(err).Str("build", rec.ID).Str("backend", backend).Msg("archive failed")
	case loc != "":
		metrics.IncArchive(backend, "success")
		rec.Location = loc
	}
	s.saveRecord(ctx, rec)

	log.Info().
		Str("session", sessionID).
		Str("build", rec.ID).
		Str("filename", rec.Filename).
		Int("pages", rec.PageCount).
		Int("attachments", len(rec.Attachments)).
		Dur("took", end.Sub(start)).
		Msg("portfolio constructed")
	return &Build{Build: rec, PDF: res.PDF}, nil
}

func (s *Service) saveRecord(ctx context.Context, rec store.Build) {
	if err := s.deps.Builds.Save(ctx, rec); err != nil {
		log.Warn().Err(err).Str("build", rec.ID).Msg("saving build record failed")
	}
}

// BuildRecord returns a stored build record.
func (s *Service) BuildRecord(ctx context.Context, id string) (store.Build, error) {
	return s.deps.Builds.Get(ctx, id)
}

// ArchivedPDF reads a build's portfolio back from the archive.
func (s *Service) ArchivedPDF(ctx context.Context, id string) (store.Build, []byte, error) {
	rec, err := s.deps.Builds.Get(ctx, id)
	if err != nil {
		return store.Build{}, nil, err
	}
	if rec.Location == "" {
		return rec, nil, storage.ErrNotArchived
	}
	pdf, err := s.deps.Archive.Open(ctx, rec.Location)
	if err != nil {
		return rec, nil, err
	}
	return rec, pdf, nil
}

// SessionBuilds lists a session's build records, newest first.
func (s *Service) SessionBuilds(ctx context.Context, sessionID string) ([]store.Build, error) {
	if _, err := s.deps.Sessions.Get(sessionID); err != nil {
		return nil, err
	}
	return s.deps.Builds.ListBySession(ctx, sessionID)
}

// PreviewFirstPage renders the first page of pdf as a PNG thumbnail, or
// returns nil when it cannot be rendered.
func (s *Service) PreviewFirstPage(pdf []byte) []byte {
	img := mupdf.Thumbnail(pdf, s.opts.PreviewScale)
	if img == nil {
		metrics.IncPreviewFailure()
	}
	return img
}

// ItemPreview renders the first page of the item at index. Attachments have
// no preview and yield nil.
func (s *Service) ItemPreview(sessionID string, index int) ([]byte, error) {
	var item binder.Item
	err := s.deps.Sessions.With(sessionID, func(b *binder.Binder) error {
		var err error
		item, err = b.At(index)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !item.IsPage() {
		return nil, nil
	}
	return s.PreviewFirstPage(item.Payload), nil
}

// ExpireSessions removes idle sessions and refreshes the session gauge.
func (s *Service) ExpireSessions() int {
	n := s.deps.Sessions.Sweep()
	metrics.SetActiveSessions(s.deps.Sessions.Len())
	return n
}
