package binder

import "fmt"

// IndexError is returned when an operation names a position outside the binder.
type IndexError struct {
	Op    string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("binder %s: index %d out of range [0,%d)", e.Op, e.Index, e.Len)
}
