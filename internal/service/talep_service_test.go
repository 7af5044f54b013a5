package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/pkg/util"
)

type fakeTalepStore struct {
	repository.TalepStore

	inserted  []domain.Talep
	openCount int
	maxPos    *float64
	listed    []domain.Talep
}

func (s *fakeTalepStore) Insert(_ context.Context, talep *domain.Talep) error {
	talep.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *talep)
	return nil
}

func (s *fakeTalepStore) CountOpenForAssignee(context.Context, string) (int, error) {
	return s.openCount, nil
}

func (s *fakeTalepStore) MaxBoardPosition(context.Context, domain.Status) (*float64, error) {
	return s.maxPos, nil
}

func (s *fakeTalepStore) ListForRequester(context.Context, string, bool) ([]domain.Talep, error) {
	return s.listed, nil
}

type fakeAccounts struct {
	repository.LoginRepository

	byName map[string]string
	byMail map[string]string
}

func (a *fakeAccounts) EmailByName(_ context.Context, name string) (string, error) {
	return a.byName[name], nil
}

func (a *fakeAccounts) NameByEmail(_ context.Context, email string) (string, error) {
	return a.byMail[email], nil
}

var requester = domain.Identity{Email: "mehmet@firma.com", DisplayName: "Mehmet Kaya"}

func fixedClock(s *TalepService, at time.Time) { s.now = func() time.Time { return at } }

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *util.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, code, de.Code)
}

func newCreateService(store *fakeTalepStore) *TalepService {
	accounts := &fakeAccounts{
		byName: map[string]string{"AYŞE YILMAZ": "ayse@firma.com"},
		byMail: map[string]string{"ayse@firma.com": "AYŞE YILMAZ"},
	}
	return NewTalepService(store, accounts, nil)
}

func TestCreateRequiresTitleAndAssignee(t *testing.T) {
	svc := newCreateService(&fakeTalepStore{})

	_, err := svc.Create(context.Background(), requester, CreateTalepInput{AssigneeName: "AYŞE YILMAZ"})
	assertCode(t, err, "VALIDATION_FAILED")

	_, err = svc.Create(context.Background(), requester, CreateTalepInput{Title: "Yazıcı arızası"})
	assertCode(t, err, "VALIDATION_FAILED")
}

func TestCreateRejectsUnknownAssigneeName(t *testing.T) {
	svc := newCreateService(&fakeTalepStore{})
	_, err := svc.Create(context.Background(), requester, CreateTalepInput{
		Title:        "Yazıcı arızası",
		AssigneeName: "OLMAYAN KİŞİ",
	})
	assertCode(t, err, "VALIDATION_FAILED")
}

func TestCreateRejectsUnknownPriority(t *testing.T) {
	svc := newCreateService(&fakeTalepStore{})
	_, err := svc.Create(context.Background(), requester, CreateTalepInput{
		Title:        "Yazıcı arızası",
		AssigneeName: "AYŞE YILMAZ",
		Priority:     "P9",
	})
	assertCode(t, err, "VALIDATION_FAILED")
}

func TestCreateSeedsPositionsAndDeadlines(t *testing.T) {
	store := &fakeTalepStore{openCount: 4, maxPos: fptr(12)}
	svc := newCreateService(store)
	created := time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC)
	fixedClock(svc, created)

	talep, err := svc.Create(context.Background(), requester, CreateTalepInput{
		Title:        "  Yazıcı arızası  ",
		Description:  "2. kat yazıcı kağıt sıkıştırıyor",
		Priority:     domain.PriorityP1,
		AssigneeName: "AYŞE YILMAZ",
	})
	require.NoError(t, err)

	assert.Equal(t, "Yazıcı arızası", talep.Title)
	assert.Equal(t, domain.StatusNew, talep.Status)
	assert.Equal(t, "ayse@firma.com", talep.AssigneeEmail)
	assert.Equal(t, "Mehmet Kaya", talep.RequesterName)

	require.NotNil(t, talep.QueuePos)
	assert.Equal(t, 5, *talep.QueuePos)
	require.NotNil(t, talep.BoardPos)
	assert.Equal(t, 13.0, *talep.BoardPos)

	// P1 deadline: next day, pinned to 17:00.
	require.NotNil(t, talep.SLADeadline)
	assert.Equal(t, time.Date(2026, 8, 28, 17, 0, 0, 0, time.UTC), *talep.SLADeadline)
	assert.Equal(t, *talep.SLADeadline, *talep.DueDate)
	require.Len(t, store.inserted, 1)
}

func TestCreatePinsExplicitDueDate(t *testing.T) {
	svc := newCreateService(&fakeTalepStore{})
	picked := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)

	talep, err := svc.Create(context.Background(), requester, CreateTalepInput{
		Title:        "VPN erişimi",
		AssigneeName: "AYŞE YILMAZ",
		DueDate:      &picked,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 9, 3, 17, 0, 0, 0, time.UTC), *talep.DueDate)
}

func TestCreateResolvesNameFromEmail(t *testing.T) {
	svc := newCreateService(&fakeTalepStore{})
	talep, err := svc.Create(context.Background(), requester, CreateTalepInput{
		Title:         "VPN erişimi",
		AssigneeEmail: "AYSE@firma.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "ayse@firma.com", talep.AssigneeEmail)
	assert.Equal(t, "AYŞE YILMAZ", talep.AssigneeName)
}

func TestListForRequesterOrdersByLifecycle(t *testing.T) {
	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeTalepStore{listed: []domain.Talep{
		{ID: 1, Title: "bitti", Status: domain.StatusDone, UpdatedAt: base},
		{ID: 2, Title: "sırada iki", Status: domain.StatusQueued, QueuePos: iptr(2), UpdatedAt: base},
		{ID: 3, Title: "sırada bir", Status: domain.StatusQueued, QueuePos: iptr(1), UpdatedAt: base},
		{ID: 4, Title: "yeni", Status: domain.StatusNew, UpdatedAt: base},
	}}
	svc := newCreateService(store)

	items, err := svc.ListForRequester(context.Background(), requester, "", false)
	require.NoError(t, err)

	got := make([]int64, 0, len(items))
	for _, item := range items {
		got = append(got, item.ID)
	}
	assert.Equal(t, []int64{4, 3, 2, 1}, got)
}

func TestListForRequesterFiltersBySearch(t *testing.T) {
	store := &fakeTalepStore{listed: []domain.Talep{
		{ID: 1, Title: "Yazıcı arızası", Status: domain.StatusNew},
		{ID: 2, Title: "VPN erişimi", Status: domain.StatusNew},
	}}
	svc := newCreateService(store)

	items, err := svc.ListForRequester(context.Background(), requester, "vpn", false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(2), items[0].ID)
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }
