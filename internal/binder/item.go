package binder

// Mode tells the composer what to do with an item's payload.
type Mode int

const (
	// ModePage items contribute visible pages; their payload is PDF bytes.
	ModePage Mode = iota
	// ModeAttachment items are embedded as native files, never rendered.
	ModeAttachment
)

func (m Mode) String() string {
	switch m {
	case ModePage:
		return "page"
	case ModeAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// MarshalText lets Mode serialise as "page"/"attachment" in JSON.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Item is a single upload placed in a binder.
type Item struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Mode        Mode   `json:"mode"`
	TypeTag     string `json:"type"`
	ContentType string `json:"content_type,omitempty"`
	Description string `json:"description,omitempty"`
	PageCount   int    `json:"page_count,omitempty"`
	Size        int    `json:"size"`
	Payload     []byte `json:"-"`
}

// IsPage reports whether the item renders as pages.
func (it Item) IsPage() bool { return it.Mode == ModePage }
