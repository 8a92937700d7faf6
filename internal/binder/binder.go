package binder

import "fmt"

// Direction selects the neighbour an item is swapped with.
type Direction int

const (
	Previous Direction = iota
	Next
)

// ParseDirection accepts "previous"/"prev"/"left" and "next"/"right".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "previous", "prev", "left", "up":
		return Previous, nil
	case "next", "right", "down":
		return Next, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Binder is the ordered list of items a portfolio is built from.
// It is not safe for concurrent use; callers serialise access.
type Binder struct {
	items []Item
}

// New returns an empty binder.
func New() *Binder { return &Binder{} }

// Len returns the number of items.
func (b *Binder) Len() int { return len(b.items) }

// Append adds an item to the end.
func (b *Binder) Append(it Item) { b.items = append(b.items, it) }

// At returns the item at index i.
func (b *Binder) At(i int) (Item, error) {
	if err := b.check("at", i); err != nil {
		return Item{}, err
	}
	return b.items[i], nil
}

// RemoveAt deletes the item at index i, shifting later items down by one.
func (b *Binder) RemoveAt(i int) (Item, error) {
	if err := b.check("remove", i); err != nil {
		return Item{}, err
	}
	removed := b.items[i]
	copy(b.items[i:], b.items[i+1:])
	b.items[len(b.items)-1] = Item{}
	b.items = b.items[:len(b.items)-1]
	return removed, nil
}

// SwapWithPrevious exchanges item i with item i-1. At index 0 it does nothing.
func (b *Binder) SwapWithPrevious(i int) error {
	if err := b.check("swap previous", i); err != nil {
		return err
	}
	if i == 0 {
		return nil
	}
	b.items[i-1], b.items[i] = b.items[i], b.items[i-1]
	return nil
}

// SwapWithNext exchanges item i with item i+1. At the last index it does nothing.
func (b *Binder) SwapWithNext(i int) error {
	if err := b.check("swap next", i); err != nil {
		return err
	}
	if i == len(b.items)-1 {
		return nil
	}
	b.items[i], b.items[i+1] = b.items[i+1], b.items[i]
	return nil
}

// Move swaps item i with its neighbour in direction d.
func (b *Binder) Move(i int, d Direction) error {
	if d == Previous {
		return b.SwapWithPrevious(i)
	}
	return b.SwapWithNext(i)
}

// Clear empties the binder.
func (b *Binder) Clear() { b.items = nil }

// Items returns a copy of the current sequence. Payload slices are shared.
func (b *Binder) Items() []Item {
	out := make([]Item, len(b.items))
	copy(out, b.items)
	return out
}

// Entry is an item together with its index in the combined list.
type Entry struct {
	Index int
	Item  Item
}

// Pages returns the page-mode items in order, keeping their combined index.
func (b *Binder) Pages() []Entry { return filter(b.items, ModePage) }

// Attachments returns the attachment-mode items in order, keeping their combined index.
func (b *Binder) Attachments() []Entry { return filter(b.items, ModeAttachment) }

func filter(items []Item, m Mode) []Entry {
	var out []Entry
	for i, it := range items {
		if it.Mode == m {
			out = append(out, Entry{Index: i, Item: it})
		}
	}
	return out
}

func (b *Binder) check(op string, i int) error {
	if i < 0 || i >= len(b.items) {
		return &IndexError{Op: op, Index: i, Len: len(b.items)}
	}
	return nil
}
