package board

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/repository"
)

// fakeStore is an in-memory TalepStore for reconciler and committer tests.
type fakeStore struct {
	mu   sync.Mutex
	rows map[int64]domain.Talep

	listErr     error
	updateErr   error
	reorderErr  error
	queueFailID int64
	queueErr    error

	// listHook runs once before the next ListForOwner read, outside the
	// store lock, so a test can interleave a competing load. listResults,
	// when non-empty, are popped one per read in place of the row map.
	listHook    func()
	listResults [][]domain.Talep

	updateCalls  []int64
	queueCalls   []queueCall
	reorderCalls [][]int64
}

type queueCall struct {
	id  int64
	pos int
}

func newFakeStore(rows ...domain.Talep) *fakeStore {
	s := &fakeStore{rows: make(map[int64]domain.Talep)}
	for _, row := range rows {
		s.rows[row.ID] = row
	}
	return s
}

func (s *fakeStore) ListForOwner(_ context.Context, scope repository.OwnerScope, _ repository.ListOptions) ([]domain.Talep, error) {
	s.mu.Lock()
	hook := s.listHook
	s.listHook = nil
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if len(s.listResults) > 0 {
		out := s.listResults[0]
		s.listResults = s.listResults[1:]
		return append([]domain.Talep(nil), out...), nil
	}
	var out []domain.Talep
	for _, row := range s.rows {
		r := row
		if scope.Matches(&r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) ListForRequester(context.Context, string, bool) ([]domain.Talep, error) {
	return nil, nil
}

func (s *fakeStore) Insert(_ context.Context, talep *domain.Talep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[talep.ID] = *talep
	return nil
}

func (s *fakeStore) UpdateOwned(_ context.Context, id int64, scope repository.OwnerScope, changes domain.TalepChanges) (*domain.Talep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls = append(s.updateCalls, id)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	row, ok := s.rows[id]
	if !ok || !scope.Matches(&row) {
		return nil, errNoRow
	}
	if changes.Status != nil {
		row.Status = *changes.Status
	}
	if changes.BoardPos != nil {
		row.BoardPos = changes.BoardPos
	}
	if changes.QueuePos != nil {
		row.QueuePos = changes.QueuePos
	}
	if changes.NoteSet {
		row.PersonalNote = changes.Note
	}
	row.UpdatedAt = time.Now()
	s.rows[id] = row
	return &row, nil
}

func (s *fakeStore) UpdateQueuePosition(_ context.Context, id int64, _ string, pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queueFailID != 0 && id == s.queueFailID {
		return s.queueErr
	}
	s.queueCalls = append(s.queueCalls, queueCall{id: id, pos: pos})
	if row, ok := s.rows[id]; ok {
		p := pos
		row.QueuePos = &p
		s.rows[id] = row
	}
	return nil
}

func (s *fakeStore) Reorder(_ context.Context, _ string, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reorderCalls = append(s.reorderCalls, append([]int64(nil), ids...))
	if s.reorderErr != nil {
		return s.reorderErr
	}
	for i, id := range ids {
		if row, ok := s.rows[id]; ok {
			p := i + 1
			row.QueuePos = &p
			s.rows[id] = row
		}
	}
	return nil
}

func (s *fakeStore) CountOpenForAssignee(context.Context, string) (int, error) {
	return len(s.rows), nil
}

func (s *fakeStore) MaxBoardPosition(context.Context, domain.Status) (*float64, error) {
	return nil, nil
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errNoRow = sentinelError("no matching row")
