package domain

import "time"

// ChangeOp tags a change-feed notification.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "insert"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent is the closed variant delivered by the change feed after the
// wire payload has been validated. Insert and update carry the complete
// post-write row; delete carries only the identifier. Events are delivered
// for every mutation regardless of origin, including the subscriber's own
// writes, so merges must tolerate self-echo.
type ChangeEvent struct {
	ID        string    `json:"id"`
	Op        ChangeOp  `json:"op"`
	Row       *Talep    `json:"row,omitempty"`
	DeletedID int64     `json:"deleted_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the event carries what its tag requires.
func (e ChangeEvent) Valid() bool {
	switch e.Op {
	case ChangeInsert, ChangeUpdate:
		return e.Row != nil && e.Row.ID != 0
	case ChangeDelete:
		return e.DeletedID != 0
	default:
		return false
	}
}
