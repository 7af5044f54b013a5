package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/talep-board/internal/api/dto"
	"github.com/spec-kit/talep-board/internal/auth"
	"github.com/spec-kit/talep-board/internal/board"
	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/observability"
	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/pkg/util"
)

// BoardHandler exposes viewport sessions: mounting, snapshots, optimistic
// moves, queue reordering and personal notes.
type BoardHandler struct {
	sessions           *board.SessionManager
	metrics            *observability.Metrics
	monitoredAssignees []string
}

// NewBoardHandler constructs handler.
func NewBoardHandler(sessions *board.SessionManager, metrics *observability.Metrics, monitoredAssignees []string) *BoardHandler {
	return &BoardHandler{sessions: sessions, metrics: metrics, monitoredAssignees: monitoredAssignees}
}

// Mount handles POST /board/sessions. A personal viewport is scoped by the
// caller's email; naming another owner requires the monitor role.
func (h *BoardHandler) Mount(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}

	var req dto.MountSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	view := domain.View(req.View)
	if req.View == "" {
		view = domain.ViewBoard
	}
	if !view.Valid() {
		return util.NewValidationError("unknown view", map[string]any{"view": req.View})
	}

	scope := repository.OwnerScope{Email: identity.Email}
	if req.OwnerName != "" && !domain.SameName(req.OwnerName, identity.DisplayName) {
		if !identity.Monitor {
			return util.NewAuthorizationError("monitor role required for another owner's board")
		}
		if !h.monitored(req.OwnerName) {
			return util.NewValidationError("owner is not monitored", map[string]any{"owner": req.OwnerName})
		}
		scope = repository.OwnerScope{Name: req.OwnerName}
	}

	session, err := h.sessions.Mount(c.UserContext(), *identity, scope, view)
	if err != nil {
		return err
	}
	if req.SLAOnly {
		session.Reconciler.SetSLAOnly(true)
		if err := session.Reconciler.Load(c.UserContext()); err != nil {
			// The session id was never revealed to the caller, so a failed
			// filtered load must tear the mount down again.
			_ = h.sessions.Unmount(session.ID, *identity)
			return err
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": dto.SessionResponse{
			SessionID: session.ID,
			View:      string(view),
			Items:     session.Reconciler.Snapshot(),
		},
	})
}

// Unmount handles DELETE /board/sessions/:id.
func (h *BoardHandler) Unmount(c *fiber.Ctx) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return util.NewUnauthorized("authentication required")
	}
	if err := h.sessions.Unmount(c.Params("id"), *identity); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Snapshot handles GET /board/sessions/:id. The board view also returns the
// grouped columns; `q` filters both shapes, `sla_only` toggles the
// near-deadline filter and refetches when it changes.
func (h *BoardHandler) Snapshot(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	rec := session.Reconciler

	if raw := c.Query("sla_only"); raw != "" {
		rec.SetSLAOnly(c.QueryBool("sla_only"))
		if err := rec.Load(c.UserContext()); err != nil {
			return err
		}
	}
	if err := rec.LastError(); err != nil {
		return err
	}

	items := board.FilterBySearch(rec.Snapshot(), c.Query("q"))
	resp := dto.SnapshotResponse{Items: items, Dirty: rec.Dirty()}
	if rec.View() == domain.ViewBoard {
		resp.Columns = board.GroupByStatus(items)
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Refresh handles POST /board/sessions/:id/refresh, the manual retry after
// a blocking load failure.
func (h *BoardHandler) Refresh(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	if err := session.Reconciler.Load(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"items": session.Reconciler.Snapshot()}})
}

// SetView handles PUT /board/sessions/:id/view.
func (h *BoardHandler) SetView(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.ViewRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	view := domain.View(req.View)
	if !view.Valid() {
		return util.NewValidationError("unknown view", map[string]any{"view": req.View})
	}
	session.Reconciler.SetView(view)
	return c.SendStatus(http.StatusNoContent)
}

// Move handles POST /board/sessions/:id/move.
func (h *BoardHandler) Move(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.MoveRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}

	if req.Index == nil {
		err = session.Reconciler.MoveToStatus(c.UserContext(), session.Actor, req.TalepID, domain.Status(req.Status))
	} else {
		err = session.Reconciler.MoveWithinBoard(c.UserContext(), session.Actor, req.TalepID, domain.Status(req.Status), *req.Index)
	}
	if err != nil {
		return err
	}
	h.metrics.RecordBoardOp("move")
	return c.JSON(fiber.Map{"data": fiber.Map{"items": session.Reconciler.Snapshot()}})
}

// SetStatus handles POST /board/sessions/:id/status, appending the card to
// the end of the target column.
func (h *BoardHandler) SetStatus(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.StatusRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := session.Reconciler.MoveToStatus(c.UserContext(), session.Actor, req.TalepID, domain.Status(req.Status)); err != nil {
		return err
	}
	h.metrics.RecordBoardOp("status")
	return c.JSON(fiber.Map{"data": fiber.Map{"items": session.Reconciler.Snapshot()}})
}

// Done handles POST /board/sessions/:id/done.
func (h *BoardHandler) Done(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req struct {
		TalepID int64 `json:"talep_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := session.Reconciler.MarkDone(c.UserContext(), session.Actor, req.TalepID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// QueueReorder handles POST /board/sessions/:id/queue/reorder. The change
// is local until commit.
func (h *BoardHandler) QueueReorder(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.QueueReorderRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := session.Reconciler.ReorderQueueLocally(req.TalepID, req.Index); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"items": session.Reconciler.Snapshot(),
		"dirty": session.Reconciler.Dirty(),
	}})
}

// QueueCommit handles POST /board/sessions/:id/queue/commit.
func (h *BoardHandler) QueueCommit(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	if err := session.Reconciler.CommitQueue(c.UserContext()); err != nil {
		return err
	}
	h.metrics.RecordBoardOp("queue_commit")
	return c.JSON(fiber.Map{"data": fiber.Map{"items": session.Reconciler.Snapshot()}})
}

// Note handles PATCH /board/sessions/:id/note.
func (h *BoardHandler) Note(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	var req dto.NoteRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := session.Reconciler.UpdatePersonalNote(c.UserContext(), session.Actor, req.TalepID, req.Note); err != nil {
		return err
	}
	h.metrics.RecordBoardOp("note")
	return c.SendStatus(http.StatusNoContent)
}

// OpenDetail handles GET /board/sessions/:id/detail/:talepID.
func (h *BoardHandler) OpenDetail(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	talepID, err := c.ParamsInt("talepID")
	if err != nil {
		return util.NewValidationError("invalid talep id", nil)
	}
	if err := session.Reconciler.OpenDetail(int64(talepID)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": session.Reconciler.ActiveDetail()})
}

// CloseDetail handles DELETE /board/sessions/:id/detail.
func (h *BoardHandler) CloseDetail(c *fiber.Ctx) error {
	session, err := h.session(c)
	if err != nil {
		return err
	}
	session.Reconciler.CloseDetail()
	return c.SendStatus(http.StatusNoContent)
}

// Assignees handles GET /board/assignees, the monitor's owner picker.
func (h *BoardHandler) Assignees(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.monitoredAssignees})
}

func (h *BoardHandler) session(c *fiber.Ctx) (*board.Session, error) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return nil, util.NewUnauthorized("authentication required")
	}
	return h.sessions.Get(c.Params("id"), *identity)
}

func (h *BoardHandler) monitored(name string) bool {
	if len(h.monitoredAssignees) == 0 {
		return true
	}
	for _, candidate := range h.monitoredAssignees {
		if domain.SameName(candidate, name) {
			return true
		}
	}
	return false
}
