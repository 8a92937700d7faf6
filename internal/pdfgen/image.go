package pdfgen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"

	"github.com/jung-kurt/gofpdf"
)

// ImageDPI is the pixel density used to size image pages.
const ImageDPI = 96.0

// ImagePage wraps a JPEG or PNG image in a single page sized to the image.
// JPEG data is embedded unchanged. PNG images are flattened onto white and
// re-encoded without an alpha channel.
func ImagePage(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("image has no pixels")
	}

	var (
		embed   []byte
		imgType string
	)
	switch format {
	case "jpeg":
		embed, imgType = data, "JPG"
	case "png":
		var buf bytes.Buffer
		if err := png.Encode(&buf, Flatten(img)); err != nil {
			return nil, fmt.Errorf("re-encode png: %w", err)
		}
		embed, imgType = buf.Bytes(), "PNG"
	default:
		return nil, fmt.Errorf("unsupported image format %q", format)
	}

	w := float64(b.Dx()) * 72 / ImageDPI
	h := float64(b.Dy()) * 72 / ImageDPI
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("portfoliobinder", false)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: imgType}
	pdf.RegisterImageOptionsReader("upload", opts, bytes.NewReader(embed))
	pdf.ImageOptions("upload", 0, 0, w, h, false, opts, 0, "")
	return output(pdf)
}

// Flatten composites img over an opaque white background. The result reports
// Opaque() == true, so the PNG encoder writes it as plain RGB.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
