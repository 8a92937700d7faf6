package filetype

import (
	"archive/zip"
	"bytes"
	"testing"
)

func zipBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("readme.txt")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = w.Write([]byte("hello"))
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDetect(t *testing.T) {
	d := New()
	tests := []struct {
		name     string
		filename string
		data     []byte
		wantMIME string
		wantDesc string
	}{
		{"pdf", "a.pdf", []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n<<>>\nendobj\n"), "application/pdf", "PDF document"},
		{"png", "b.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), "image/png", "Image file"},
		{"text", "c.txt", []byte("just some words\n"), "text/plain", "Plain text file"},
		{"zip", "c.zip", zipBytes(t), "application/zip", "Archive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := d.Detect(tc.filename, tc.data)
			if got.MIMEType != tc.wantMIME {
				t.Errorf("MIMEType = %q, want %q", got.MIMEType, tc.wantMIME)
			}
			if got.Description != tc.wantDesc {
				t.Errorf("Description = %q, want %q", got.Description, tc.wantDesc)
			}
		})
	}
}

func TestDetectZipContainerUsesExtension(t *testing.T) {
	got := New().Detect("notes.xlsx", zipBytes(t))
	if got.MIMEType != zipContainers[".xlsx"] {
		t.Errorf("MIMEType = %q, want spreadsheet type", got.MIMEType)
	}
	if got.Description != "Spreadsheet" {
		t.Errorf("Description = %q", got.Description)
	}
}
