package board

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/position"
	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/pkg/util"
)

// Reconciler maintains one owner's viewport collection. It applies
// mutations optimistically, persists them through the store, merges change
// feed events, and rolls failed writes back by refetching. All methods are
// safe for concurrent use; the feed goroutine calls Apply while handlers
// call everything else.
type Reconciler struct {
	store     repository.TalepStore
	committer *Committer
	logger    *zap.Logger

	scope     repository.OwnerScope
	slaWindow time.Duration
	limit     int

	mu         sync.Mutex
	view       domain.View
	slaOnly    bool
	items      []domain.Talep
	activeID   int64
	dirty      bool
	loadErr    error
	generation uint64
}

// ReconcilerConfig wires a reconciler's collaborators and scope.
type ReconcilerConfig struct {
	Store     repository.TalepStore
	Committer *Committer
	Logger    *zap.Logger
	Scope     repository.OwnerScope
	View      domain.View
	SLAWindow time.Duration
	Limit     int
}

// NewReconciler builds an empty reconciler; call Load before reading it.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	view := cfg.View
	if !view.Valid() {
		view = domain.ViewBoard
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Reconciler{
		store:     cfg.Store,
		committer: cfg.Committer,
		logger:    cfg.Logger,
		scope:     cfg.Scope,
		slaWindow: cfg.SLAWindow,
		limit:     cfg.Limit,
		view:      view,
	}
}

// Load replaces the collection with a fresh store read. A failed read is a
// blocking state: the old collection is kept but LastError reports the
// failure until a later Load succeeds. Each Load supersedes any in-flight
// reload, never the other way around.
func (r *Reconciler) Load(ctx context.Context) error {
	r.mu.Lock()
	r.generation++
	gen := r.generation
	opts := r.listOptions()
	r.mu.Unlock()

	items, err := r.store.ListForOwner(ctx, r.scope, opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return nil
	}
	if err != nil {
		r.loadErr = util.NewFetchError(err)
		return r.loadErr
	}
	r.items = SortForView(items, r.view)
	r.loadErr = nil
	r.dirty = false
	return nil
}

// SetView switches the viewport ordering without refetching.
func (r *Reconciler) SetView(view domain.View) {
	if !view.Valid() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.view = view
	r.items = SortForView(r.items, r.view)
}

// View returns the current viewport ordering.
func (r *Reconciler) View() domain.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// SetSLAOnly toggles the near-deadline filter; the caller follows up with
// Load since the filter narrows the store read.
func (r *Reconciler) SetSLAOnly(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slaOnly = on
}

// OpenDetail marks a row as the active detail panel.
func (r *Reconciler) OpenDetail(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexOf(id) < 0 {
		return util.NewNotFound("talep", map[string]any{"id": id})
	}
	r.activeID = id
	return nil
}

// CloseDetail clears the active detail panel.
func (r *Reconciler) CloseDetail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeID = 0
}

// ActiveDetail returns a copy of the active row, or nil when the panel is
// closed or the row has been removed by the feed.
func (r *Reconciler) ActiveDetail() *domain.Talep {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID == 0 {
		return nil
	}
	idx := r.indexOf(r.activeID)
	if idx < 0 {
		return nil
	}
	row := r.items[idx]
	return &row
}

// Snapshot returns a copy of the collection in the current view order.
func (r *Reconciler) Snapshot() []domain.Talep {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Talep(nil), r.items...)
}

// Dirty reports whether a local queue reorder has not been committed yet.
func (r *Reconciler) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}

// LastError returns the blocking load error, if any.
func (r *Reconciler) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

// MoveWithinBoard places a card at destIndex inside destStatus, computes a
// fractional position between its new neighbors, applies the change locally
// and persists it. On a failed write the optimistic change is discarded by
// refetching the whole collection.
func (r *Reconciler) MoveWithinBoard(ctx context.Context, actor domain.Identity, id int64, destStatus domain.Status, destIndex int) error {
	if !destStatus.Known() {
		return util.NewValidationError("unknown status", map[string]any{"status": destStatus})
	}
	return r.moveToSlot(ctx, actor, id, destStatus, destIndex)
}

// MoveToStatus appends a card to the end of destStatus's column.
func (r *Reconciler) MoveToStatus(ctx context.Context, actor domain.Identity, id int64, destStatus domain.Status) error {
	if !destStatus.Known() {
		return util.NewValidationError("unknown status", map[string]any{"status": destStatus})
	}
	return r.moveToSlot(ctx, actor, id, destStatus, -1)
}

// MarkDone closes a card from the detail panel.
func (r *Reconciler) MarkDone(ctx context.Context, actor domain.Identity, id int64) error {
	return r.MoveToStatus(ctx, actor, id, domain.StatusDone)
}

// moveToSlot is the shared move path. destIndex < 0 means end of column.
func (r *Reconciler) moveToSlot(ctx context.Context, actor domain.Identity, id int64, destStatus domain.Status, destIndex int) error {
	r.mu.Lock()
	idx := r.indexOf(id)
	if idx < 0 {
		r.mu.Unlock()
		return util.NewNotFound("talep", map[string]any{"id": id})
	}
	if !r.canEdit(actor, &r.items[idx]) {
		r.mu.Unlock()
		return util.NewAuthorizationError("talep belongs to another assignee")
	}

	prev, next := r.neighborsLocked(id, destStatus, destIndex)
	if position.Crowded(prev, next) {
		r.logger.Warn("board positions crowded",
			zap.Int64("id", id),
			zap.String("status", string(destStatus)))
	}
	newPos := position.Between(prev, next)

	r.items[idx].Status = destStatus
	r.items[idx].BoardPos = &newPos
	r.items[idx].UpdatedAt = time.Now()
	r.items = SortForView(r.items, r.view)
	gen := r.generation
	r.mu.Unlock()

	changes := domain.TalepChanges{Status: &destStatus, BoardPos: &newPos}
	if _, err := r.store.UpdateOwned(ctx, id, r.scope, changes); err != nil {
		r.logger.Error("board move write failed",
			zap.Int64("id", id), zap.Error(err))
		r.reload(ctx, gen)
		return util.NewPersistenceError(err)
	}
	return nil
}

// neighborsLocked computes the board positions bracketing the destination
// slot: the card is removed from its current column, the destination column
// is read in board order and the slot's neighbors are taken around the
// clamped index. Callers hold r.mu.
func (r *Reconciler) neighborsLocked(id int64, destStatus domain.Status, destIndex int) (prev, next *float64) {
	column := make([]domain.Talep, 0, len(r.items))
	for _, item := range r.items {
		col := item.Status
		if !col.Known() {
			col = domain.StatusNew
		}
		if col == destStatus && item.ID != id {
			column = append(column, item)
		}
	}
	sortBoardOrder(column)

	if destIndex < 0 || destIndex > len(column) {
		destIndex = len(column)
	}
	if destIndex > 0 {
		prev = column[destIndex-1].BoardPos
	}
	if destIndex < len(column) {
		next = column[destIndex].BoardPos
	}
	return prev, next
}

// ReorderQueueLocally moves a Queued card to destIndex within the queue and
// renumbers the queue 1..N in memory only. Nothing is persisted until
// CommitQueue; the viewport is marked dirty. Cards in any other status are
// not orderable and the call is a no-op.
func (r *Reconciler) ReorderQueueLocally(id int64, destIndex int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return util.NewNotFound("talep", map[string]any{"id": id})
	}
	if r.items[idx].Status != domain.StatusQueued {
		return nil
	}

	queue := EligibleForQueue(SortForListView(r.items))
	from := -1
	for i := range queue {
		if queue[i].ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		return nil
	}
	if destIndex < 0 {
		destIndex = 0
	}
	if destIndex >= len(queue) {
		destIndex = len(queue) - 1
	}

	moved := queue[from]
	queue = append(queue[:from], queue[from+1:]...)
	queue = append(queue[:destIndex], append([]domain.Talep{moved}, queue[destIndex:]...)...)

	order := make(map[int64]int, len(queue))
	for i := range queue {
		order[queue[i].ID] = i + 1
	}
	for i := range r.items {
		if pos, ok := order[r.items[i].ID]; ok {
			p := pos
			r.items[i].QueuePos = &p
		}
	}
	r.items = SortForView(r.items, r.view)
	r.dirty = true
	return nil
}

// CommitQueue persists the locally renumbered queue order and refetches the
// collection so the viewport reflects what the store accepted.
func (r *Reconciler) CommitQueue(ctx context.Context) error {
	r.mu.Lock()
	queue := EligibleForQueue(SortForListView(r.items))
	ids := make([]int64, 0, len(queue))
	ownerEmail := r.scope.Email
	for _, item := range queue {
		ids = append(ids, item.ID)
		if ownerEmail == "" {
			ownerEmail = item.AssigneeEmail
		}
	}
	gen := r.generation
	r.mu.Unlock()

	if len(ids) == 0 {
		r.mu.Lock()
		r.dirty = false
		r.mu.Unlock()
		return nil
	}

	if err := r.committer.Commit(ctx, ids, ownerEmail); err != nil {
		return err
	}

	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
	r.reload(ctx, gen)
	return nil
}

// UpdatePersonalNote writes the assignee's private annotation. The note is
// trimmed; an empty result clears the column. The local row is only updated
// after the write succeeds, so a failure leaves the previous note in place
// and the caller keeps its draft.
func (r *Reconciler) UpdatePersonalNote(ctx context.Context, actor domain.Identity, id int64, note string) error {
	r.mu.Lock()
	idx := r.indexOf(id)
	if idx < 0 {
		r.mu.Unlock()
		return util.NewNotFound("talep", map[string]any{"id": id})
	}
	if !r.canEdit(actor, &r.items[idx]) {
		r.mu.Unlock()
		return util.NewAuthorizationError("talep belongs to another assignee")
	}
	r.mu.Unlock()

	trimmed := strings.TrimSpace(note)
	changes := domain.TalepChanges{NoteSet: true}
	if trimmed != "" {
		changes.Note = &trimmed
	}

	updated, err := r.store.UpdateOwned(ctx, id, r.scope, changes)
	if err != nil {
		return util.NewPersistenceError(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if idx = r.indexOf(id); idx >= 0 {
		r.items[idx].PersonalNote = updated.PersonalNote
		r.items[idx].UpdatedAt = updated.UpdatedAt
	}
	return nil
}

// Apply merges one change feed event into the collection. Deletes remove
// the row if present. Inserts and updates for another owner are discarded.
// Unknown rows are appended, known rows are replaced with the incoming
// post-write image, so replaying the same event is harmless. In an SLA-only
// viewport the near-deadline filter is re-applied to merged rows; the store
// read filters in SQL but feed events bypass it. The collection is
// re-sorted after every merge.
func (r *Reconciler) Apply(event domain.ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Op {
	case domain.ChangeDelete:
		idx := r.indexOf(event.DeletedID)
		if idx < 0 {
			return
		}
		r.items = append(r.items[:idx], r.items[idx+1:]...)
		if r.activeID == event.DeletedID {
			r.activeID = 0
		}
	case domain.ChangeInsert, domain.ChangeUpdate:
		if event.Row == nil || !r.scope.Matches(event.Row) {
			return
		}
		row := *event.Row
		idx := r.indexOf(row.ID)
		if r.slaOnly && !row.NearSLA(time.Now(), r.slaWindowOrDefault()) {
			if idx < 0 {
				return
			}
			r.items = append(r.items[:idx], r.items[idx+1:]...)
			if r.activeID == row.ID {
				r.activeID = 0
			}
		} else if idx >= 0 {
			r.items[idx] = row
		} else {
			r.items = append(r.items, row)
		}
	default:
		return
	}
	r.items = SortForView(r.items, r.view)
}

// reload refetches after a failed or committed mutation. It completes an
// in-flight cycle and therefore never supersedes a Load issued after the
// mutation started; the generation check discards the stale result instead.
func (r *Reconciler) reload(ctx context.Context, gen uint64) {
	r.mu.Lock()
	if r.generation != gen {
		r.mu.Unlock()
		return
	}
	opts := r.listOptions()
	r.mu.Unlock()

	items, err := r.store.ListForOwner(ctx, r.scope, opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != gen {
		return
	}
	if err != nil {
		r.logger.Error("reload after mutation failed", zap.Error(err))
		r.loadErr = util.NewFetchError(err)
		return
	}
	r.items = SortForView(items, r.view)
	r.loadErr = nil
}

// canEdit allows the assignee themselves, or a monitor acting on the
// viewport's scoped owner.
func (r *Reconciler) canEdit(actor domain.Identity, t *domain.Talep) bool {
	if t.AssigneeEmail != "" && t.AssigneeEmail == actor.Email {
		return true
	}
	return actor.Monitor && r.scope.Matches(t)
}

// slaWindowOrDefault mirrors the store-side default for unset windows.
func (r *Reconciler) slaWindowOrDefault() time.Duration {
	if r.slaWindow <= 0 {
		return 24 * time.Hour
	}
	return r.slaWindow
}

func (r *Reconciler) listOptions() repository.ListOptions {
	return repository.ListOptions{
		View:      r.view,
		SLAOnly:   r.slaOnly,
		SLAWindow: r.slaWindow,
		Limit:     r.limit,
	}
}

// indexOf is called with r.mu held.
func (r *Reconciler) indexOf(id int64) int {
	for i := range r.items {
		if r.items[i].ID == id {
			return i
		}
	}
	return -1
}
