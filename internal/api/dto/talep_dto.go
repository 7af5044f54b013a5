// Package dto holds request and response shapes for the HTTP API.
package dto

import (
	"time"

	"github.com/spec-kit/talep-board/internal/domain"
)

// CreateTalepRequest is the new-request form body. Assignee may be given by
// display name or by email.
type CreateTalepRequest struct {
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Priority      string     `json:"priority"`
	AssigneeName  string     `json:"assignee_name"`
	AssigneeEmail string     `json:"assignee_email"`
	DueDate       *time.Time `json:"due_date"`
	Attachments   []string   `json:"attachments"`
}

// MountSessionRequest opens a viewport. OwnerName selects another
// assignee's board and requires the monitor role.
type MountSessionRequest struct {
	View      string `json:"view"`
	OwnerName string `json:"owner_name"`
	SLAOnly   bool   `json:"sla_only"`
}

// MoveRequest places a card at an index inside a status column. A nil
// index means the end of the column.
type MoveRequest struct {
	TalepID int64  `json:"talep_id"`
	Status  string `json:"status"`
	Index   *int   `json:"index"`
}

// StatusRequest moves a card to the end of a status column.
type StatusRequest struct {
	TalepID int64  `json:"talep_id"`
	Status  string `json:"status"`
}

// QueueReorderRequest moves a Queued card to an index in the personal list.
type QueueReorderRequest struct {
	TalepID int64 `json:"talep_id"`
	Index   int   `json:"index"`
}

// NoteRequest replaces the assignee's private note on a card.
type NoteRequest struct {
	TalepID int64  `json:"talep_id"`
	Note    string `json:"note"`
}

// ViewRequest switches a mounted session's ordering.
type ViewRequest struct {
	View string `json:"view"`
}

// SessionResponse reports a mounted session and its initial collection.
type SessionResponse struct {
	SessionID string         `json:"session_id"`
	View      string         `json:"view"`
	Items     []domain.Talep `json:"items"`
}

// SnapshotResponse is one consistent read of a session.
type SnapshotResponse struct {
	Items   []domain.Talep                   `json:"items"`
	Columns map[domain.Status][]domain.Talep `json:"columns,omitempty"`
	Dirty   bool                             `json:"dirty"`
}
