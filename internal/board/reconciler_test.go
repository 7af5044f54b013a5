package board

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/pkg/util"
)

const (
	ownerEmail = "ayse@firma.com"
	ownerName  = "AYŞE YILMAZ"
)

var owner = domain.Identity{Email: ownerEmail, DisplayName: ownerName, Editor: true}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

func talepRow(id int64, status domain.Status, boardPos *float64, queuePos *int) domain.Talep {
	return domain.Talep{
		ID:            id,
		Title:         "talep",
		Priority:      domain.PriorityP2,
		Status:        status,
		AssigneeEmail: ownerEmail,
		AssigneeName:  ownerName,
		BoardPos:      boardPos,
		QueuePos:      queuePos,
		UpdatedAt:     time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
	}
}

func newTestReconciler(t *testing.T, store *fakeStore, view domain.View) *Reconciler {
	t.Helper()
	rec := NewReconciler(ReconcilerConfig{
		Store:     store,
		Committer: NewCommitter(store, zap.NewNop()),
		Scope:     repository.OwnerScope{Email: ownerEmail},
		View:      view,
	})
	require.NoError(t, rec.Load(context.Background()))
	return rec
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var de *util.DomainError
	require.ErrorAs(t, err, &de)
	return de.Code
}

func TestMoveWithinBoardComputesMidpoint(t *testing.T) {
	store := newFakeStore(
		talepRow(1, domain.StatusNew, fptr(1000), nil),
		talepRow(2, domain.StatusNew, fptr(2000), nil),
		talepRow(3, domain.StatusNew, fptr(3000), nil),
	)
	rec := newTestReconciler(t, store, domain.ViewBoard)

	require.NoError(t, rec.MoveWithinBoard(context.Background(), owner, 3, domain.StatusNew, 1))

	snapshot := rec.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, []int64{1, 3, 2}, []int64{snapshot[0].ID, snapshot[1].ID, snapshot[2].ID})
	require.NotNil(t, snapshot[1].BoardPos)
	assert.Equal(t, 1500.0, *snapshot[1].BoardPos)
	assert.Equal(t, []int64{3}, store.updateCalls)
}

func TestMoveToStatusAppendsToColumn(t *testing.T) {
	store := newFakeStore(
		talepRow(1, domain.StatusNew, fptr(1000), nil),
		talepRow(2, domain.StatusInProgress, fptr(500), nil),
	)
	rec := newTestReconciler(t, store, domain.ViewBoard)

	require.NoError(t, rec.MoveToStatus(context.Background(), owner, 1, domain.StatusInProgress))

	snapshot := rec.Snapshot()
	byID := map[int64]domain.Talep{}
	for _, row := range snapshot {
		byID[row.ID] = row
	}
	assert.Equal(t, domain.StatusInProgress, byID[1].Status)
	require.NotNil(t, byID[1].BoardPos)
	assert.Equal(t, 1500.0, *byID[1].BoardPos)
}

func TestMoveIntoEmptyColumnUsesGap(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)

	require.NoError(t, rec.MoveToStatus(context.Background(), owner, 1, domain.StatusTesting))

	snapshot := rec.Snapshot()
	require.NotNil(t, snapshot[0].BoardPos)
	assert.Equal(t, 1000.0, *snapshot[0].BoardPos)
}

func TestMoveRejectsForeignAssignee(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)

	stranger := domain.Identity{Email: "mehmet@firma.com"}
	err := rec.MoveWithinBoard(context.Background(), stranger, 1, domain.StatusNew, 0)
	assert.Equal(t, "NOT_OWNER", domainCode(t, err))
	assert.Empty(t, store.updateCalls)
}

func TestMonitorMayMoveScopedRows(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)

	monitor := domain.Identity{Email: "lead@firma.com", Monitor: true}
	assert.NoError(t, rec.MoveToStatus(context.Background(), monitor, 1, domain.StatusQueued))
}

func TestFailedMoveRollsBackToStoreState(t *testing.T) {
	store := newFakeStore(
		talepRow(1, domain.StatusNew, fptr(1000), nil),
		talepRow(2, domain.StatusNew, fptr(2000), nil),
	)
	rec := newTestReconciler(t, store, domain.ViewBoard)
	store.updateErr = errors.New("connection reset")

	err := rec.MoveWithinBoard(context.Background(), owner, 2, domain.StatusQueued, 0)
	assert.Equal(t, "PERSISTENCE_FAILED", domainCode(t, err))

	// The optimistic change is discarded; the collection matches the store.
	snapshot := rec.Snapshot()
	require.Len(t, snapshot, 2)
	for _, row := range snapshot {
		if row.ID == 2 {
			assert.Equal(t, domain.StatusNew, row.Status)
			assert.Equal(t, 2000.0, *row.BoardPos)
		}
	}
}

func TestReorderQueueLocallyRenumbersWithoutWrites(t *testing.T) {
	store := newFakeStore(
		talepRow(10, domain.StatusQueued, nil, iptr(10)),
		talepRow(20, domain.StatusQueued, nil, iptr(20)),
		talepRow(30, domain.StatusQueued, nil, iptr(30)),
	)
	rec := newTestReconciler(t, store, domain.ViewList)

	require.NoError(t, rec.ReorderQueueLocally(30, 0))

	snapshot := rec.Snapshot()
	assert.Equal(t, []int64{30, 10, 20}, []int64{snapshot[0].ID, snapshot[1].ID, snapshot[2].ID})
	assert.Equal(t, 1, *snapshot[0].QueuePos)
	assert.Equal(t, 2, *snapshot[1].QueuePos)
	assert.Equal(t, 3, *snapshot[2].QueuePos)
	assert.True(t, rec.Dirty())
	assert.Empty(t, store.updateCalls)
	assert.Empty(t, store.queueCalls)
}

func TestReorderQueueIgnoresNonQueuedRows(t *testing.T) {
	store := newFakeStore(
		talepRow(1, domain.StatusInProgress, nil, nil),
		talepRow(2, domain.StatusQueued, nil, iptr(1)),
	)
	rec := newTestReconciler(t, store, domain.ViewList)

	require.NoError(t, rec.ReorderQueueLocally(1, 0))
	assert.False(t, rec.Dirty())
}

func TestCommitQueueFallbackWritesSequentialPositions(t *testing.T) {
	store := newFakeStore(
		talepRow(10, domain.StatusQueued, nil, iptr(10)),
		talepRow(20, domain.StatusQueued, nil, iptr(20)),
		talepRow(30, domain.StatusQueued, nil, iptr(30)),
	)
	store.reorderErr = repository.ErrReorderUnsupported
	rec := newTestReconciler(t, store, domain.ViewList)

	require.NoError(t, rec.ReorderQueueLocally(30, 0))
	require.NoError(t, rec.CommitQueue(context.Background()))

	assert.Equal(t, []queueCall{{30, 1}, {10, 2}, {20, 3}}, store.queueCalls)
	assert.False(t, rec.Dirty())

	snapshot := rec.Snapshot()
	assert.Equal(t, []int64{30, 10, 20}, []int64{snapshot[0].ID, snapshot[1].ID, snapshot[2].ID})
}

func TestCommitQueueUsesReorderFunctionWhenAvailable(t *testing.T) {
	store := newFakeStore(
		talepRow(10, domain.StatusQueued, nil, iptr(1)),
		talepRow(20, domain.StatusQueued, nil, iptr(2)),
	)
	rec := newTestReconciler(t, store, domain.ViewList)

	require.NoError(t, rec.ReorderQueueLocally(20, 0))
	require.NoError(t, rec.CommitQueue(context.Background()))

	require.Len(t, store.reorderCalls, 1)
	assert.Equal(t, []int64{20, 10}, store.reorderCalls[0])
	assert.Empty(t, store.queueCalls)
}

func TestCommitQueueReportsPartialFailure(t *testing.T) {
	store := newFakeStore(
		talepRow(10, domain.StatusQueued, nil, iptr(10)),
		talepRow(20, domain.StatusQueued, nil, iptr(20)),
		talepRow(30, domain.StatusQueued, nil, iptr(30)),
	)
	store.reorderErr = repository.ErrReorderUnsupported
	store.queueFailID = 10
	store.queueErr = errors.New("deadlock detected")
	rec := newTestReconciler(t, store, domain.ViewList)

	require.NoError(t, rec.ReorderQueueLocally(30, 0))
	err := rec.CommitQueue(context.Background())

	var de *util.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "PARTIAL_COMMIT", de.Code)
	assert.Equal(t, 1, de.Details["rows_applied"])
	assert.True(t, rec.Dirty())
}

func TestUpdatePersonalNoteTrimsAndClears(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusQueued, nil, iptr(1)))
	rec := newTestReconciler(t, store, domain.ViewList)

	require.NoError(t, rec.UpdatePersonalNote(context.Background(), owner, 1, "  arayıp teyit et  "))
	snapshot := rec.Snapshot()
	require.NotNil(t, snapshot[0].PersonalNote)
	assert.Equal(t, "arayıp teyit et", *snapshot[0].PersonalNote)

	require.NoError(t, rec.UpdatePersonalNote(context.Background(), owner, 1, "   "))
	snapshot = rec.Snapshot()
	assert.Nil(t, snapshot[0].PersonalNote)
}

func TestFailedNoteWriteKeepsPreviousNote(t *testing.T) {
	note := "eski not"
	row := talepRow(1, domain.StatusQueued, nil, iptr(1))
	row.PersonalNote = &note
	store := newFakeStore(row)
	rec := newTestReconciler(t, store, domain.ViewList)
	store.updateErr = errors.New("timeout")

	err := rec.UpdatePersonalNote(context.Background(), owner, 1, "yeni not")
	assert.Equal(t, "PERSISTENCE_FAILED", domainCode(t, err))

	snapshot := rec.Snapshot()
	require.NotNil(t, snapshot[0].PersonalNote)
	assert.Equal(t, "eski not", *snapshot[0].PersonalNote)
}

func TestApplyDeleteOfUnknownRowIsNoop(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)

	rec.Apply(domain.ChangeEvent{Op: domain.ChangeDelete, DeletedID: 999})
	assert.Len(t, rec.Snapshot(), 1)
}

func TestApplyDeleteRemovesRowAndClosesDetail(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)
	require.NoError(t, rec.OpenDetail(1))

	rec.Apply(domain.ChangeEvent{Op: domain.ChangeDelete, DeletedID: 1})
	assert.Empty(t, rec.Snapshot())
	assert.Nil(t, rec.ActiveDetail())
}

func TestApplyDiscardsRowsOfOtherOwners(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)

	foreign := talepRow(2, domain.StatusNew, fptr(500), nil)
	foreign.AssigneeEmail = "mehmet@firma.com"
	rec.Apply(domain.ChangeEvent{Op: domain.ChangeInsert, Row: &foreign})

	assert.Len(t, rec.Snapshot(), 1)
}

func TestApplyIsIdempotent(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)

	incoming := talepRow(2, domain.StatusNew, fptr(500), nil)
	event := domain.ChangeEvent{Op: domain.ChangeInsert, Row: &incoming}
	rec.Apply(event)
	rec.Apply(event)

	snapshot := rec.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, int64(2), snapshot[0].ID)
}

func TestApplyUpdateReplacesFieldsAndResorts(t *testing.T) {
	store := newFakeStore(
		talepRow(1, domain.StatusNew, fptr(1000), nil),
		talepRow(2, domain.StatusNew, fptr(2000), nil),
	)
	rec := newTestReconciler(t, store, domain.ViewBoard)

	moved := talepRow(2, domain.StatusNew, fptr(100), nil)
	moved.Title = "öncelik değişti"
	rec.Apply(domain.ChangeEvent{Op: domain.ChangeUpdate, Row: &moved})

	snapshot := rec.Snapshot()
	assert.Equal(t, int64(2), snapshot[0].ID)
	assert.Equal(t, "öncelik değişti", snapshot[0].Title)
}

func TestStaleReloadIsDiscardedAfterNewerLoad(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)
	store.updateErr = errors.New("connection reset")

	fresh := []domain.Talep{
		talepRow(1, domain.StatusNew, fptr(1000), nil),
		talepRow(2, domain.StatusNew, fptr(2000), nil),
	}
	stale := []domain.Talep{talepRow(99, domain.StatusNew, fptr(1), nil)}

	// The failed move triggers a rollback refetch; before that refetch
	// reads, a competing Load runs to completion. The rollback's result is
	// older and must not overwrite the newer collection.
	store.listHook = func() {
		require.NoError(t, rec.Load(context.Background()))
	}
	store.listResults = [][]domain.Talep{fresh, stale}

	err := rec.MoveWithinBoard(context.Background(), owner, 1, domain.StatusQueued, 0)
	assert.Equal(t, "PERSISTENCE_FAILED", domainCode(t, err))

	snapshot := rec.Snapshot()
	require.Len(t, snapshot, 2)
	assert.Equal(t, []int64{1, 2}, []int64{snapshot[0].ID, snapshot[1].ID})
}

func TestSupersededLoadResultIsDropped(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)

	fresh := []domain.Talep{talepRow(2, domain.StatusNew, fptr(500), nil)}
	stale := []domain.Talep{talepRow(99, domain.StatusNew, fptr(1), nil)}

	// A second Load starts and finishes while the first one's read is still
	// in flight; the first result comes back superseded.
	store.listHook = func() {
		require.NoError(t, rec.Load(context.Background()))
	}
	store.listResults = [][]domain.Talep{fresh, stale}

	require.NoError(t, rec.Load(context.Background()))

	snapshot := rec.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, int64(2), snapshot[0].ID)
}

func TestApplyReappliesSLAFilterToMergedRows(t *testing.T) {
	near := time.Now().Add(2 * time.Hour)
	far := time.Now().Add(30 * 24 * time.Hour)

	seeded := talepRow(1, domain.StatusInProgress, fptr(1000), nil)
	seeded.SLADeadline = &near
	store := newFakeStore(seeded)
	rec := newTestReconciler(t, store, domain.ViewBoard)
	rec.SetSLAOnly(true)
	require.NoError(t, rec.Load(context.Background()))

	// A row far from its deadline never enters the filtered viewport.
	farRow := talepRow(2, domain.StatusNew, fptr(500), nil)
	farRow.SLADeadline = &far
	rec.Apply(domain.ChangeEvent{Op: domain.ChangeInsert, Row: &farRow})
	assert.Len(t, rec.Snapshot(), 1)

	// A near one does.
	nearRow := talepRow(3, domain.StatusNew, fptr(700), nil)
	nearRow.SLADeadline = &near
	rec.Apply(domain.ChangeEvent{Op: domain.ChangeInsert, Row: &nearRow})
	assert.Len(t, rec.Snapshot(), 2)

	// Finished work is excluded even with a near deadline.
	doneRow := talepRow(4, domain.StatusDone, fptr(800), nil)
	doneRow.SLADeadline = &near
	rec.Apply(domain.ChangeEvent{Op: domain.ChangeInsert, Row: &doneRow})
	assert.Len(t, rec.Snapshot(), 2)

	// An update pushing the deadline out removes the row from the viewport.
	deferred := seeded
	deferred.SLADeadline = &far
	rec.Apply(domain.ChangeEvent{Op: domain.ChangeUpdate, Row: &deferred})
	snapshot := rec.Snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, int64(3), snapshot[0].ID)
}

func TestLoadFailureIsBlockingUntilRetry(t *testing.T) {
	store := newFakeStore(talepRow(1, domain.StatusNew, fptr(1000), nil))
	rec := newTestReconciler(t, store, domain.ViewBoard)

	store.listErr = errors.New("connection refused")
	err := rec.Load(context.Background())
	assert.Equal(t, "FETCH_FAILED", domainCode(t, err))
	assert.Error(t, rec.LastError())

	// The previous collection survives the failed refresh.
	assert.Len(t, rec.Snapshot(), 1)

	store.listErr = nil
	require.NoError(t, rec.Load(context.Background()))
	assert.NoError(t, rec.LastError())
}
