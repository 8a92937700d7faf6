package pdfinfo

import (
	"bytes"
	"testing"

	"github.com/jung-kurt/gofpdf"
)

func blankPDF(t *testing.T, pages int) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.Text(40, 40, "page")
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPageCount(t *testing.T) {
	for _, n := range []int{1, 3} {
		got, err := PageCount(blankPDF(t, n))
		if err != nil {
			t.Fatal(err)
		}
		if got != n {
			t.Errorf("PageCount = %d, want %d", got, n)
		}
	}
}

func TestPageCountRejectsGarbage(t *testing.T) {
	if _, err := PageCount([]byte("not a pdf")); err == nil {
		t.Error("expected error")
	}
}

func TestAttachmentsEmpty(t *testing.T) {
	got, err := Attachments(blankPDF(t, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Attachments = %v, want none", got)
	}
}
