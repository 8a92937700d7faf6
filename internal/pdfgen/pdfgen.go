package pdfgen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Page geometry in points, matching an A4 page with the text origin near the top-left corner.
const (
	PageWidth  = 595.28
	PageHeight = 841.89

	MarginLeft   = 50.0
	MarginTop    = 50.0
	MarginBottom = 40.0

	BodyFontSize = 11.0
	lineHeight   = 1.25 // multiple of font size
)

const bodyFont = "Helvetica"

// newDocument returns an A4 document measured in points with automatic
// page breaks disabled; every generator here places text explicitly.
func newDocument() *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("portfoliobinder", false)
	return pdf
}

func output(pdf *gofpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// TextPage renders text on a single page, one line per input line, in 11pt
// Helvetica starting at (50, 50). Lines that do not fit above the bottom
// margin are not drawn.
func TextPage(text string) ([]byte, error) {
	pdf := newDocument()
	pdf.AddPage()
	pdf.SetFont(bodyFont, "", BodyFontSize)
	pdf.SetTextColor(0, 0, 0)

	step := BodyFontSize * lineHeight
	y := MarginTop
	for _, line := range splitLines(text) {
		if y > PageHeight-MarginBottom {
			break
		}
		if line != "" {
			pdf.Text(MarginLeft, y, toPageFont(line))
		}
		y += step
	}
	return output(pdf)
}

// PlaceholderPage renders a single page carrying only msg.
func PlaceholderPage(msg string) ([]byte, error) {
	pdf := newDocument()
	pdf.AddPage()
	pdf.SetFont(bodyFont, "", BodyFontSize)
	pdf.Text(MarginLeft, MarginTop, toPageFont(msg))
	return output(pdf)
}

// DecodeText turns uploaded bytes into a string without failing: a UTF-16 or
// UTF-8 byte order mark selects the encoding, and invalid sequences become U+FFFD.
func DecodeText(data []byte) string {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(out)
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", "    ")
	return strings.Split(s, "\n")
}

// toPageFont encodes s in the code page of the core PDF fonts (Windows-1252).
// Characters the code page cannot represent are written as '?'.
func toPageFont(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 {
			continue
		}
		if c, ok := charmap.Windows1252.EncodeRune(r); ok {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('?')
	}
	return b.String()
}
