// Package service holds use-case logic above the repositories: creating
// taleps, requester listings and authentication.
package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/board"
	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/pkg/util"
)

// dueHour is the hour of day every due date and SLA deadline is pinned to.
const dueHour = 17

const maxTitleLen = 200

// CreateTalepInput is the new-request form.
type CreateTalepInput struct {
	Title         string
	Description   string
	Priority      domain.Priority
	AssigneeName  string
	AssigneeEmail string
	DueDate       *time.Time
}

// TalepService creates taleps and serves the requester's own listing.
type TalepService struct {
	taleps   repository.TalepStore
	accounts repository.LoginRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewTalepService wires the service. The clock is injectable for tests.
func NewTalepService(taleps repository.TalepStore, accounts repository.LoginRepository, logger *zap.Logger) *TalepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TalepService{taleps: taleps, accounts: accounts, logger: logger, now: time.Now}
}

// Create validates the form, resolves the assignee, derives the SLA deadline
// from priority and seeds the new row's queue and board positions.
func (s *TalepService) Create(ctx context.Context, requester domain.Identity, input CreateTalepInput) (*domain.Talep, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, util.NewValidationError("title is required", nil)
	}
	if len([]rune(title)) > maxTitleLen {
		return nil, util.NewValidationError("title too long", map[string]any{"max": maxTitleLen})
	}

	priority := input.Priority
	switch priority {
	case domain.PriorityP1, domain.PriorityP2, domain.PriorityP3:
	case "":
		priority = domain.PriorityP3
	default:
		return nil, util.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	assigneeEmail, assigneeName, err := s.resolveAssignee(ctx, input)
	if err != nil {
		return nil, err
	}

	requesterName := requester.DisplayName
	if requesterName == "" {
		if requesterName, err = s.accounts.NameByEmail(ctx, requester.Email); err != nil {
			return nil, util.MapError(err)
		}
	}

	now := s.now()
	slaDeadline := pinToDueHour(now.Add(priority.SLAOffset()))
	dueDate := slaDeadline
	if input.DueDate != nil {
		dueDate = pinToDueHour(*input.DueDate)
	}

	openCount, err := s.taleps.CountOpenForAssignee(ctx, assigneeEmail)
	if err != nil {
		return nil, util.MapError(err)
	}
	maxPos, err := s.taleps.MaxBoardPosition(ctx, domain.StatusNew)
	if err != nil {
		return nil, util.MapError(err)
	}
	boardPos := 1.0
	if maxPos != nil {
		boardPos = *maxPos + 1
	}
	queuePos := openCount + 1

	talep := &domain.Talep{
		Title:          title,
		Description:    strings.TrimSpace(input.Description),
		Priority:       priority,
		Status:         domain.StatusNew,
		RequesterEmail: requester.Email,
		RequesterName:  requesterName,
		AssigneeEmail:  assigneeEmail,
		AssigneeName:   assigneeName,
		UpdatedAt:      now,
		DueDate:        &dueDate,
		SLADeadline:    &slaDeadline,
		BoardPos:       &boardPos,
		QueuePos:       &queuePos,
	}

	if err := s.taleps.Insert(ctx, talep); err != nil {
		s.logger.Error("talep insert failed", zap.Error(err))
		return nil, util.NewPersistenceError(err)
	}
	s.logger.Info("talep created",
		zap.Int64("id", talep.ID),
		zap.String("assignee", assigneeEmail),
		zap.String("priority", string(priority)))
	return talep, nil
}

// resolveAssignee turns the form's display name or email into the durable
// (email, name) pair stored on the row.
func (s *TalepService) resolveAssignee(ctx context.Context, input CreateTalepInput) (email, name string, err error) {
	email = strings.TrimSpace(strings.ToLower(input.AssigneeEmail))
	name = strings.TrimSpace(input.AssigneeName)
	if email == "" && name == "" {
		return "", "", util.NewValidationError("assignee is required", nil)
	}
	if email == "" {
		if email, err = s.accounts.EmailByName(ctx, name); err != nil {
			return "", "", util.MapError(err)
		}
		if email == "" {
			return "", "", util.NewValidationError("assignee not found", map[string]any{"name": name})
		}
		return email, name, nil
	}
	if name == "" {
		if name, err = s.accounts.NameByEmail(ctx, email); err != nil {
			return "", "", util.MapError(err)
		}
	}
	return email, name, nil
}

// ListForRequester returns the caller's own requests, newest activity first
// within a fixed status progression, optionally filtered by a search query.
func (s *TalepService) ListForRequester(ctx context.Context, requester domain.Identity, search string, onlyOpen bool) ([]domain.Talep, error) {
	items, err := s.taleps.ListForRequester(ctx, requester.Email, onlyOpen)
	if err != nil {
		return nil, util.NewFetchError(err)
	}
	items = board.FilterBySearch(items, search)
	sortForRequester(items)
	return items, nil
}

// sortForRequester orders by lifecycle stage, then the assignee's queue
// order for Queued rows, then board position, recency and id.
func sortForRequester(items []domain.Talep) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := &items[i], &items[j]
		ra, rb := statusRank(a.Status), statusRank(b.Status)
		if ra != rb {
			return ra < rb
		}
		if a.Status == domain.StatusQueued {
			qa, qb := posOrMax(a.QueuePos), posOrMax(b.QueuePos)
			if qa != qb {
				return qa < qb
			}
		}
		ba, bb := boardOrMax(a.BoardPos), boardOrMax(b.BoardPos)
		if ba != bb {
			return ba < bb
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

func statusRank(s domain.Status) int {
	switch s {
	case domain.StatusNew:
		return 0
	case domain.StatusQueued:
		return 1
	case domain.StatusInProgress:
		return 2
	case domain.StatusTesting:
		return 3
	case domain.StatusDone:
		return 4
	case domain.StatusRejected:
		return 5
	default:
		return 6
	}
}

func posOrMax(v *int) int {
	if v == nil {
		return int(^uint(0) >> 1)
	}
	return *v
}

func boardOrMax(v *float64) float64 {
	if v == nil {
		return 1e15
	}
	return *v
}

func pinToDueHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), dueHour, 0, 0, 0, t.Location())
}
