package mupdf

import (
	"errors"
	"fmt"

	"github.com/gen2brain/go-fitz"
)

// Open parses an in-memory PDF with MuPDF. Callers must Close the document.
func Open(pdf []byte) (*fitz.Document, error) {
	if len(pdf) == 0 {
		return nil, errors.New("empty document")
	}
	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return doc, nil
}

// PageText extracts the text of one page (1-based).
func PageText(pdf []byte, pageNum int) (string, error) {
	doc, err := Open(pdf)
	if err != nil {
		return "", err
	}
	defer doc.Close()

	// go-fitz uses 0-based indexing
	idx := pageNum - 1
	if idx < 0 || idx >= doc.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", pageNum, doc.NumPage())
	}
	text, err := doc.Text(idx)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", pageNum, err)
	}
	return text, nil
}
