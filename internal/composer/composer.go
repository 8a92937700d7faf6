package composer

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	"github.com/local/portfoliobinder/internal/binder"
	"github.com/local/portfoliobinder/internal/classifier"
	"github.com/local/portfoliobinder/internal/pdfgen"
	"github.com/local/portfoliobinder/internal/pdfinfo"
)

// EmptyPortfolioText is written on the only page of a portfolio without pages.
const EmptyPortfolioText = "Empty Portfolio"

// Options controls the optional parts of a portfolio.
type Options struct {
	IncludeTOC bool
	// TOCTitle overrides pdfgen.DefaultTOCTitle.
	TOCTitle string
}

// Result is a composed portfolio.
type Result struct {
	PDF         []byte
	PageCount   int
	Attachments []string
}

// Contents builds the table of contents for items: pages are numbered by
// their position among page items only, attachments keep list order.
func Contents(items []binder.Item) pdfgen.TOC {
	var toc pdfgen.TOC
	for _, it := range items {
		if it.IsPage() {
			toc.Pages = append(toc.Pages, it.Name)
		} else {
			toc.Attachments = append(toc.Attachments, pdfgen.TOCAttachment{Name: it.Name, TypeTag: it.TypeTag})
		}
	}
	return toc
}

// AttachmentDescription is the description stored with an embedded file.
func AttachmentDescription(typeTag string) string {
	return fmt.Sprintf("Native %s file", typeTag)
}

// Compose builds the final PDF: optional contents page, every page of every
// page item in order, a placeholder page when nothing else produced one, and
// every attachment item embedded as a file. Embedding never changes pages.
func Compose(items []binder.Item, opts Options) (*Result, error) {
	var sources []source

	if opts.IncludeTOC {
		toc := Contents(items)
		toc.Title = opts.TOCTitle
		page, err := pdfgen.TOCPage(toc)
		if err != nil {
			return nil, fmt.Errorf("table of contents: %w", err)
		}
		sources = append(sources, source{data: page})
	}

	for _, it := range items {
		if !it.IsPage() {
			continue
		}
		if _, err := pdfinfo.PageCount(it.Payload); err != nil {
			return nil, &classifier.ConversionError{Filename: it.Name, Err: err}
		}
		sources = append(sources, source{name: it.Name, data: it.Payload})
	}

	if len(sources) == 0 {
		page, err := pdfgen.PlaceholderPage(EmptyPortfolioText)
		if err != nil {
			return nil, fmt.Errorf("placeholder page: %w", err)
		}
		sources = append(sources, source{data: page})
	}

	merged, err := merge(sources)
	if err != nil {
		return nil, err
	}

	ctx, err := pdfinfo.Read(merged)
	if err != nil {
		return nil, fmt.Errorf("read merged document: %w", err)
	}
	// Files embedded in page documents do not carry over.
	if err := dropAttachments(ctx); err != nil {
		return nil, fmt.Errorf("drop inherited attachments: %w", err)
	}

	var attached []string
	names := uniqueNames(items)
	now := time.Now()
	for i, it := range items {
		if it.IsPage() {
			continue
		}
		a := model.Attachment{
			Reader:  bytes.NewReader(it.Payload),
			ID:      names[i],
			Desc:    AttachmentDescription(it.TypeTag),
			ModTime: &now,
		}
		if err := ctx.AddAttachment(a, false); err != nil {
			return nil, &classifier.ConversionError{Filename: it.Name, Err: fmt.Errorf("embed attachment: %w", err)}
		}
		attached = append(attached, names[i])
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, fmt.Errorf("write portfolio: %w", err)
	}

	log.Debug().
		Int("items", len(items)).
		Int("pages", ctx.PageCount).
		Int("attachments", len(attached)).
		Bool("toc", opts.IncludeTOC).
		Int("bytes", out.Len()).
		Msg("composed portfolio")

	return &Result{PDF: out.Bytes(), PageCount: ctx.PageCount, Attachments: attached}, nil
}

// source is one document to merge. Generated pages have no name.
type source struct {
	name string
	data []byte
}

var mergeRaw = api.MergeRaw

func mergeAll(docs ...[]byte) ([]byte, error) {
	readers := make([]io.ReadSeeker, len(docs))
	for i, d := range docs {
		readers[i] = bytes.NewReader(d)
	}
	var out bytes.Buffer
	if err := mergeRaw(readers, &out, false, pdfinfo.Configuration()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func merge(sources []source) ([]byte, error) {
	if len(sources) == 1 {
		return sources[0].data, nil
	}
	docs := make([][]byte, len(sources))
	for i, src := range sources {
		docs[i] = src.data
	}
	out, err := mergeAll(docs...)
	if err == nil {
		return out, nil
	}
	return nil, mergeFailure(sources, err)
}

// mergeFailure merges sources one at a time to find the document the merge
// chokes on, and names it in a ConversionError.
func mergeFailure(sources []source, cause error) error {
	acc := sources[0].data
	for _, src := range sources[1:] {
		next, err := mergeAll(acc, src.data)
		if err != nil {
			if src.name == "" {
				break
			}
			return &classifier.ConversionError{Filename: src.name, Err: fmt.Errorf("merge pages: %w", err)}
		}
		acc = next
	}
	return fmt.Errorf("merge pages: %w", cause)
}

func dropAttachments(ctx *model.Context) error {
	existing, err := ctx.ListAttachments()
	if err != nil || len(existing) == 0 {
		return err
	}
	log.Debug().Int("count", len(existing)).Msg("removing attachments inherited from page documents")
	_, err = ctx.RemoveAttachments(nil)
	return err
}

// uniqueNames returns, per item index, the name under which an attachment is
// embedded. Repeated filenames get " (2)", " (3)", ... before the extension.
func uniqueNames(items []binder.Item) []string {
	out := make([]string, len(items))
	seen := map[string]int{}
	for i, it := range items {
		if it.IsPage() {
			continue
		}
		name := it.Name
		if name == "" {
			name = "attachment"
		}
		key := strings.ToLower(name)
		seen[key]++
		if n := seen[key]; n > 1 {
			ext := path.Ext(name)
			candidate := fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
			for seen[strings.ToLower(candidate)] > 0 {
				n++
				candidate = fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
			}
			seen[strings.ToLower(candidate)]++
			name = candidate
		}
		out[i] = name
	}
	return out
}
