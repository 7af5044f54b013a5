package domain

import "time"

// Status enumerates board columns for a talep. The string values are the
// codes stored in the talepler table.
type Status string

const (
	StatusNew        Status = "Yeni"
	StatusQueued     Status = "SirayaAlindi"
	StatusInProgress Status = "IslemeAlindi"
	StatusTesting    Status = "TestEdiliyor"
	StatusDone       Status = "Tamamlandi"

	// StatusRejected is a legacy terminal code still present in old rows.
	// It is excluded from open-work filters but never written by this service.
	StatusRejected Status = "Reddedildi"
)

// BoardColumns is the fixed column order of the kanban view.
var BoardColumns = []Status{
	StatusNew,
	StatusQueued,
	StatusInProgress,
	StatusTesting,
	StatusDone,
}

// IsTerminal reports whether a status counts as finished work.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusRejected
}

// Known reports whether the status is one of the five board columns.
func (s Status) Known() bool {
	for _, col := range BoardColumns {
		if s == col {
			return true
		}
	}
	return false
}

// Priority enumerates SLA urgency.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// SLAOffset returns how long after creation the SLA deadline falls.
func (p Priority) SLAOffset() time.Duration {
	switch p {
	case PriorityP1:
		return 24 * time.Hour
	case PriorityP2:
		return 72 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Talep is the request ticket aggregate.
//
// QueuePos orders the assignee's personal list and is meaningful only while
// Status is Queued; in every other status it is stale display data. BoardPos
// is a fractional sort key ordering the ticket within its status column; it
// only needs to be unique enough for a deterministic order.
// The struct crosses the Redis change feed as JSON, hence the tags.
type Talep struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Priority       Priority   `json:"priority"`
	Status         Status     `json:"status"`
	RequesterEmail string     `json:"requester_email"`
	RequesterName  string     `json:"requester_name"`
	AssigneeEmail  string     `json:"assignee_email"`
	AssigneeName   string     `json:"assignee_name"`
	PersonalNote   *string    `json:"personal_note,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	SLADeadline    *time.Time `json:"sla_deadline,omitempty"`
	BoardPos       *float64   `json:"board_pos,omitempty"`
	QueuePos       *int       `json:"queue_pos,omitempty"`
}

// NearSLA reports whether the ticket's SLA deadline falls inside the window
// and the ticket is still open.
func (t *Talep) NearSLA(now time.Time, window time.Duration) bool {
	if t.SLADeadline == nil || t.Status.IsTerminal() {
		return false
	}
	return t.SLADeadline.Before(now.Add(window))
}

// TalepChanges is a partial update applied to one row. Nil fields are left
// untouched. NoteSet distinguishes clearing the note from not touching it.
type TalepChanges struct {
	Status   *Status
	BoardPos *float64
	QueuePos *int
	Note     *string
	NoteSet  bool
}
