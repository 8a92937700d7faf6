package filetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Info contains detected file type information
type Info struct {
	MIMEType    string
	Description string
}

// IsPDF reports whether the magic bytes identify a PDF document.
func (i Info) IsPDF() bool { return i.MIMEType == "application/pdf" }

// IsImage reports whether the magic bytes identify a raster image.
func (i Info) IsImage() bool { return strings.HasPrefix(i.MIMEType, "image/") }

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// zipContainers maps extensions of ZIP-based formats to their MIME types.
var zipContainers = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".vsdx": "application/vnd.ms-visio.drawing.main+xml",
	".odt":  "application/vnd.oasis.opendocument.text",
	".ods":  "application/vnd.oasis.opendocument.spreadsheet",
	".odp":  "application/vnd.oasis.opendocument.presentation",
	".dwfx": "model/vnd.dwfx+xps",
}

// oleContainers maps extensions of OLE/CFB-based formats to their MIME types.
var oleContainers = map[string]string{
	".doc": "application/msword",
	".xls": "application/vnd.ms-excel",
	".ppt": "application/vnd.ms-powerpoint",
	".vsd": "application/vnd.ms-visio.drawing",
}

// Detect identifies data using magic bytes, falling back to the filename
// extension to tell apart container formats that share a signature.
func (d *Detector) Detect(filename string, data []byte) Info {
	mtype := mimetype.Detect(data)
	mimeType := mtype.String()
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	ext := strings.ToLower(filepath.Ext(filename))

	log.Debug().Str("mime", mimeType).Str("ext", mtype.Extension()).Str("file", filename).Msg("detected file type")

	switch {
	case mimeType == "application/zip" || strings.Contains(mimeType, "application/x-zip"):
		if override, ok := zipContainers[ext]; ok {
			log.Debug().Str("original", mimeType).Str("override", override).Msg("overriding ZIP detection based on extension")
			mimeType = override
		}
	case mimeType == "application/x-ole-storage" || mimeType == "application/x-cfb":
		if override, ok := oleContainers[ext]; ok {
			log.Debug().Str("original", mimeType).Str("override", override).Msg("overriding OLE detection based on extension")
			mimeType = override
		}
	}

	return Info{
		MIMEType:    mimeType,
		Description: describe(mimeType),
	}
}

// describe gives a human label for the kinds of file a portfolio usually carries.
func describe(mimeType string) string {
	switch {
	case mimeType == "application/pdf":
		return "PDF document"
	case strings.HasPrefix(mimeType, "image/"):
		return "Image file"
	case strings.HasPrefix(mimeType, "text/"):
		return "Plain text file"
	case mimeType == "application/zip", mimeType == "application/x-7z-compressed",
		mimeType == "application/x-rar-compressed", mimeType == "application/gzip",
		mimeType == "application/x-tar":
		return "Archive"
	case strings.Contains(mimeType, "spreadsheet"), mimeType == "application/vnd.ms-excel":
		return "Spreadsheet"
	case strings.Contains(mimeType, "wordprocessing"), mimeType == "application/msword",
		mimeType == "application/vnd.oasis.opendocument.text":
		return "Word processing document"
	case strings.Contains(mimeType, "presentation"), mimeType == "application/vnd.ms-powerpoint":
		return "Presentation"
	case strings.Contains(mimeType, "visio"):
		return "Visio drawing"
	case strings.Contains(mimeType, "dwg"), strings.Contains(mimeType, "dxf"), strings.HasPrefix(mimeType, "model/"):
		return "CAD drawing"
	case mimeType == "application/octet-stream":
		return "Binary file"
	default:
		return mimeType
	}
}
