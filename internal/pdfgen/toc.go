package pdfgen

import (
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// TOCAttachment is one line of the attachment section.
type TOCAttachment struct {
	Name    string
	TypeTag string
}

// TOC lists page item names in page order and the attachments in list order.
type TOC struct {
	Title       string
	Pages       []string
	Attachments []TOCAttachment
}

const (
	tocTitleSize   = 20.0
	tocHeadingSize = 14.0
	tocIndent      = 70.0
)

// DefaultTOCTitle heads the contents page when TOC.Title is empty.
const DefaultTOCTitle = "Portfolio Table of Contents"

// TOCPage renders the table of contents on exactly one page. Entries that
// would run past the bottom margin are summarised in a final "... and N more" line.
func TOCPage(toc TOC) ([]byte, error) {
	title := toc.Title
	if title == "" {
		title = DefaultTOCTitle
	}

	pdf := newDocument()
	pdf.AddPage()

	pdf.SetFont(bodyFont, "", tocTitleSize)
	pdf.SetTextColor(0, 0, 128)
	pdf.Text(MarginLeft, MarginTop, toPageFont(title))

	y := 100.0
	pdf.SetFont(bodyFont, "", tocHeadingSize)
	pdf.SetTextColor(0, 0, 0)
	pdf.Text(MarginLeft, y, "Visual Document Pages:")
	y += 25

	lines := make([]string, 0, len(toc.Pages))
	for i, name := range toc.Pages {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, name))
	}
	var attLines []string
	for _, a := range toc.Attachments {
		attLines = append(attLines, fmt.Sprintf("• %s (%s)", a.Name, a.TypeTag))
	}

	limit := PageHeight - MarginBottom
	pdf.SetFont(bodyFont, "", BodyFontSize)
	y, dropped := drawEntries(pdf, lines, y, limit)

	if len(attLines) > 0 && dropped == 0 && y+20 <= limit {
		y += 20
		pdf.SetFont(bodyFont, "", tocHeadingSize)
		pdf.Text(MarginLeft, y, "Embedded Native Attachments:")
		y += 25
		pdf.SetFont(bodyFont, "", BodyFontSize)
		y, dropped = drawEntries(pdf, attLines, y, limit)
	} else {
		dropped += len(attLines)
	}
	if dropped > 0 {
		pdf.Text(tocIndent, limit+BodyFontSize, fmt.Sprintf("... and %d more", dropped))
	}
	return output(pdf)
}

// drawEntries writes lines at 15pt spacing until limit and reports how many did not fit.
func drawEntries(pdf *gofpdf.Fpdf, lines []string, y, limit float64) (float64, int) {
	for i, l := range lines {
		if y > limit-15 {
			return y, len(lines) - i
		}
		pdf.Text(tocIndent, y, toPageFont(l))
		y += 15
	}
	return y, 0
}
