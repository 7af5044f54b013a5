package domain

// View selects how a viewport orders its collection.
type View string

const (
	// ViewBoard groups by status and orders by board position.
	ViewBoard View = "board"
	// ViewList is the flat personal queue ordered by queue position.
	ViewList View = "list"
)

// Valid reports whether v is a known view.
func (v View) Valid() bool {
	return v == ViewBoard || v == ViewList
}
