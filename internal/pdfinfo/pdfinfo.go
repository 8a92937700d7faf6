package pdfinfo

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// Keep pdfcpu from creating a config directory under $HOME.
	api.DisableConfigDir()
}

// Configuration returns the pdfcpu configuration used for uploaded documents.
// Validation is relaxed so slightly malformed uploads still merge.
func Configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Read parses, validates and optimizes pdf and makes sure the page count is known.
func Read(pdf []byte) (*model.Context, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(pdf), Configuration())
	if err != nil {
		return nil, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, err
	}
	return ctx, nil
}

// PageCount returns the number of pages in pdf.
func PageCount(pdf []byte) (int, error) {
	ctx, err := Read(pdf)
	if err != nil {
		return 0, fmt.Errorf("pdf page count failed: %w", err)
	}
	return ctx.PageCount, nil
}

// Attachment describes one embedded file.
type Attachment struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Attachments lists the files embedded in pdf, in name tree order.
func Attachments(pdf []byte) ([]Attachment, error) {
	ctx, err := Read(pdf)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	list, err := ctx.ListAttachments()
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	out := make([]Attachment, 0, len(list))
	for _, a := range list {
		out = append(out, Attachment{Name: a.ID, Description: a.Desc})
	}
	return out, nil
}
