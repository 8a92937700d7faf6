package classifier

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/portfoliobinder/internal/binder"
	"github.com/local/portfoliobinder/internal/filetype"
	"github.com/local/portfoliobinder/internal/pdfgen"
	"github.com/local/portfoliobinder/internal/pdfinfo"
)

// ConversionError reports an upload that could not be turned into a binder item.
type ConversionError struct {
	Filename string
	Err      error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s: %v", e.Filename, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// handler turns the bytes of a page-mode upload into PDF bytes. accepts,
// when set, tells whether the sniffed content is what the extension promises.
type handler struct {
	tag     string
	want    string
	accepts func(filetype.Info) bool
	convert func(data []byte) ([]byte, error)
}

// AttachmentKind is the Kind of uploads that are embedded instead of paged.
const AttachmentKind = "ATTACHMENT"

// Classifier maps uploads to binder items by extension.
type Classifier struct {
	handlers map[string]handler
	detector *filetype.Detector
}

// New returns a classifier with the built-in extension table:
// pdf → PDF, jpg/jpeg/png → IMAGE, txt/md → TEXT; anything else is an attachment.
func New() *Classifier {
	c := &Classifier{handlers: map[string]handler{}, detector: filetype.New()}
	c.register(handler{tag: "PDF", want: "a PDF document", accepts: filetype.Info.IsPDF, convert: checkPDF}, "pdf")
	c.register(handler{tag: "IMAGE", want: "an image", accepts: filetype.Info.IsImage, convert: pdfgen.ImagePage}, "jpg", "jpeg", "png")
	c.register(handler{tag: "TEXT", convert: textPage}, "txt", "md")
	return c
}

func (c *Classifier) register(h handler, exts ...string) {
	for _, ext := range exts {
		c.handlers[ext] = h
	}
}

// Extension returns the lower-cased suffix after the last dot, or "" if there is none.
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	i := strings.LastIndexByte(base, '.')
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[i+1:])
}

// IsPageExtension reports whether files with ext become pages.
func (c *Classifier) IsPageExtension(ext string) bool {
	_, ok := c.handlers[strings.ToLower(ext)]
	return ok
}

// Kind returns the page tag filename's extension maps to (PDF, IMAGE, TEXT),
// or AttachmentKind.
func (c *Classifier) Kind(filename string) string {
	if h, ok := c.handlers[Extension(filename)]; ok {
		return h.tag
	}
	return AttachmentKind
}

// Classify turns one upload into a binder item.
func (c *Classifier) Classify(filename string, data []byte) (binder.Item, error) {
	ext := Extension(filename)
	info := c.detector.Detect(filename, data)
	item := binder.Item{
		ID:          uuid.NewString(),
		Name:        filename,
		ContentType: info.MIMEType,
		Description: info.Description,
		Size:        len(data),
	}

	h, ok := c.handlers[ext]
	if !ok {
		item.Mode = binder.ModeAttachment
		item.TypeTag = strings.ToUpper(ext)
		if item.TypeTag == "" {
			item.TypeTag = "FILE"
		}
		item.Payload = data
		log.Debug().Str("file", filename).Str("type", item.TypeTag).Str("mime", info.MIMEType).Msg("classified as attachment")
		return item, nil
	}

	payload, err := h.convert(data)
	if err != nil {
		if h.accepts != nil && !h.accepts(info) {
			err = fmt.Errorf("content is %s, not %s: %w", info.Description, h.want, err)
		}
		return binder.Item{}, &ConversionError{Filename: filename, Err: err}
	}
	pages, err := pdfinfo.PageCount(payload)
	if err != nil {
		return binder.Item{}, &ConversionError{Filename: filename, Err: err}
	}
	if pages == 0 {
		return binder.Item{}, &ConversionError{Filename: filename, Err: errors.New("document has no pages")}
	}

	item.Mode = binder.ModePage
	item.TypeTag = h.tag
	item.Payload = payload
	item.PageCount = pages
	log.Debug().Str("file", filename).Str("type", item.TypeTag).Int("pages", pages).Msg("classified as page")
	return item, nil
}

// checkPDF passes PDF uploads through unchanged.
func checkPDF(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}
	return data, nil
}

func textPage(data []byte) ([]byte, error) {
	return pdfgen.TextPage(pdfgen.DecodeText(data))
}
