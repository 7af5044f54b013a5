package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/feed"
)

// ErrReorderUnsupported is reported when the set_assignee_order function does
// not exist in the target database; callers fall back to row-by-row updates.
var ErrReorderUnsupported = errors.New("reorder function unavailable")

// OwnerScope selects whose tickets a viewport shows: by durable email for a
// personal inbox, by display name for the monitor view.
type OwnerScope struct {
	Email string
	Name  string
}

// Matches reports whether a row belongs to the scoped owner.
func (s OwnerScope) Matches(t *domain.Talep) bool {
	if s.Email != "" {
		return t.AssigneeEmail == s.Email
	}
	if s.Name != "" {
		return t.AssigneeName == s.Name
	}
	return true
}

// ListOptions captures viewport read parameters.
type ListOptions struct {
	View      domain.View
	SLAOnly   bool
	SLAWindow time.Duration
	Limit     int
}

// TalepStore encapsulates talep persistence. Every successful mutation is
// also published to the change feed.
type TalepStore interface {
	ListForOwner(ctx context.Context, scope OwnerScope, opts ListOptions) ([]domain.Talep, error)
	ListForRequester(ctx context.Context, email string, onlyOpen bool) ([]domain.Talep, error)
	Insert(ctx context.Context, talep *domain.Talep) error
	UpdateOwned(ctx context.Context, id int64, scope OwnerScope, changes domain.TalepChanges) (*domain.Talep, error)
	UpdateQueuePosition(ctx context.Context, id int64, ownerEmail string, pos int) error
	Reorder(ctx context.Context, ownerEmail string, ids []int64) error
	CountOpenForAssignee(ctx context.Context, email string) (int, error)
	MaxBoardPosition(ctx context.Context, status domain.Status) (*float64, error)
}

type talepRepository struct {
	pool      *pgxpool.Pool
	publisher feed.Publisher
	logger    *zap.Logger
}

// NewTalepRepository instantiates the Postgres-backed store. The publisher
// may be nil in tests.
func NewTalepRepository(pool *pgxpool.Pool, publisher feed.Publisher, logger *zap.Logger) TalepStore {
	return &talepRepository{pool: pool, publisher: publisher, logger: logger}
}

const talepColumns = `id, baslik, aciklama, oncelik, durum,
       talep_eden_email, talep_eden_kullanici, atanan_email, atanan_kullanici,
       kullanici_notu, guncelleme_tarihi, bitis_tarihi, sla_son_tarih,
       kolon_sira, atanan_sira`

func (r *talepRepository) ListForOwner(ctx context.Context, scope OwnerScope, opts ListOptions) ([]domain.Talep, error) {
	clauses := []string{}
	args := []any{}

	switch {
	case scope.Email != "":
		args = append(args, scope.Email)
		clauses = append(clauses, fmt.Sprintf("atanan_email=$%d", len(args)))
	case scope.Name != "":
		args = append(args, scope.Name)
		clauses = append(clauses, fmt.Sprintf("atanan_kullanici=$%d", len(args)))
	default:
		return nil, errors.New("owner scope required")
	}

	if opts.SLAOnly {
		window := opts.SLAWindow
		if window <= 0 {
			window = 24 * time.Hour
		}
		args = append(args, time.Now().Add(window))
		clauses = append(clauses, fmt.Sprintf("sla_son_tarih < $%d", len(args)))
		clauses = append(clauses, fmt.Sprintf("durum NOT IN ('%s','%s')", domain.StatusDone, domain.StatusRejected))
	}

	order := "kolon_sira ASC NULLS FIRST, guncelleme_tarihi DESC"
	if opts.View == domain.ViewList {
		order = "atanan_sira ASC NULLS LAST, guncelleme_tarihi DESC"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 500
	}

	query := fmt.Sprintf(`SELECT %s FROM talepler WHERE %s ORDER BY %s LIMIT %d`,
		talepColumns, strings.Join(clauses, " AND "), order, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTalepler(rows)
}

func (r *talepRepository) ListForRequester(ctx context.Context, email string, onlyOpen bool) ([]domain.Talep, error) {
	clauses := []string{"talep_eden_email=$1"}
	args := []any{email}
	if onlyOpen {
		clauses = append(clauses, fmt.Sprintf("durum NOT IN ('%s','%s')", domain.StatusDone, domain.StatusRejected))
	}
	query := fmt.Sprintf(`SELECT %s FROM talepler WHERE %s ORDER BY guncelleme_tarihi DESC`,
		talepColumns, strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTalepler(rows)
}

func (r *talepRepository) Insert(ctx context.Context, talep *domain.Talep) error {
	const query = `
        INSERT INTO talepler (baslik, aciklama, oncelik, durum,
            talep_eden_email, talep_eden_kullanici, atanan_email, atanan_kullanici,
            bitis_tarihi, sla_son_tarih, kolon_sira, atanan_sira, guncelleme_tarihi)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
        RETURNING id, guncelleme_tarihi`
	err := r.pool.QueryRow(ctx, query,
		talep.Title,
		talep.Description,
		talep.Priority,
		talep.Status,
		talep.RequesterEmail,
		talep.RequesterName,
		talep.AssigneeEmail,
		talep.AssigneeName,
		talep.DueDate,
		talep.SLADeadline,
		talep.BoardPos,
		talep.QueuePos,
	).Scan(&talep.ID, &talep.UpdatedAt)
	if err != nil {
		return err
	}
	r.publish(ctx, domain.ChangeEvent{Op: domain.ChangeInsert, Row: talep})
	return nil
}

func (r *talepRepository) UpdateOwned(ctx context.Context, id int64, scope OwnerScope, changes domain.TalepChanges) (*domain.Talep, error) {
	sets := []string{"guncelleme_tarihi=NOW()"}
	args := []any{}

	if changes.Status != nil {
		args = append(args, *changes.Status)
		sets = append(sets, fmt.Sprintf("durum=$%d", len(args)))
	}
	if changes.BoardPos != nil {
		args = append(args, *changes.BoardPos)
		sets = append(sets, fmt.Sprintf("kolon_sira=$%d", len(args)))
	}
	if changes.QueuePos != nil {
		args = append(args, *changes.QueuePos)
		sets = append(sets, fmt.Sprintf("atanan_sira=$%d", len(args)))
	}
	if changes.NoteSet {
		args = append(args, changes.Note)
		sets = append(sets, fmt.Sprintf("kullanici_notu=$%d", len(args)))
	}

	args = append(args, id)
	where := []string{fmt.Sprintf("id=$%d", len(args))}
	switch {
	case scope.Email != "":
		args = append(args, scope.Email)
		where = append(where, fmt.Sprintf("atanan_email=$%d", len(args)))
	case scope.Name != "":
		args = append(args, scope.Name)
		where = append(where, fmt.Sprintf("atanan_kullanici=$%d", len(args)))
	}

	query := fmt.Sprintf(`UPDATE talepler SET %s WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), strings.Join(where, " AND "), talepColumns)

	updated, err := r.fetchSingle(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	r.publish(ctx, domain.ChangeEvent{Op: domain.ChangeUpdate, Row: updated})
	return updated, nil
}

// UpdateQueuePosition writes one queue slot, scoped by owner and Queued
// status so a row whose status changed concurrently is skipped, not
// corrupted. Zero rows affected is therefore not an error.
func (r *talepRepository) UpdateQueuePosition(ctx context.Context, id int64, ownerEmail string, pos int) error {
	query := fmt.Sprintf(`
        UPDATE talepler SET atanan_sira=$1, guncelleme_tarihi=NOW()
        WHERE id=$2 AND atanan_email=$3 AND durum='%s'
        RETURNING %s`, domain.StatusQueued, talepColumns)

	updated, err := r.fetchSingle(ctx, query, pos, id, ownerEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	r.publish(ctx, domain.ChangeEvent{Op: domain.ChangeUpdate, Row: updated})
	return nil
}

// Reorder calls the server-side set_assignee_order function. Databases
// without the function report ErrReorderUnsupported.
func (r *talepRepository) Reorder(ctx context.Context, ownerEmail string, ids []int64) error {
	if _, err := r.pool.Exec(ctx, `SELECT set_assignee_order($1, $2::bigint[])`, ownerEmail, ids); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42883" {
			return ErrReorderUnsupported
		}
		return err
	}

	// The function renumbers rows server-side; re-read them so subscribers
	// see the new order.
	query := fmt.Sprintf(`SELECT %s FROM talepler WHERE id = ANY($1) AND atanan_email=$2`, talepColumns)
	rows, err := r.pool.Query(ctx, query, ids, ownerEmail)
	if err != nil {
		r.logger.Warn("reorder applied but rows could not be re-read", zap.Error(err))
		return nil
	}
	defer rows.Close()
	reordered, err := scanTalepler(rows)
	if err != nil {
		r.logger.Warn("reorder applied but rows could not be re-read", zap.Error(err))
		return nil
	}
	for i := range reordered {
		r.publish(ctx, domain.ChangeEvent{Op: domain.ChangeUpdate, Row: &reordered[i]})
	}
	return nil
}

func (r *talepRepository) CountOpenForAssignee(ctx context.Context, email string) (int, error) {
	query := fmt.Sprintf(`
        SELECT COUNT(*) FROM talepler
        WHERE atanan_email=$1 AND durum NOT IN ('%s','%s')`,
		domain.StatusDone, domain.StatusRejected)
	var count int
	if err := r.pool.QueryRow(ctx, query, email).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *talepRepository) MaxBoardPosition(ctx context.Context, status domain.Status) (*float64, error) {
	const query = `SELECT MAX(kolon_sira) FROM talepler WHERE durum=$1`
	var max *float64
	if err := r.pool.QueryRow(ctx, query, status).Scan(&max); err != nil {
		return nil, err
	}
	return max, nil
}

func (r *talepRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Talep, error) {
	var talep domain.Talep
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&talep.ID,
		&talep.Title,
		&talep.Description,
		&talep.Priority,
		&talep.Status,
		&talep.RequesterEmail,
		&talep.RequesterName,
		&talep.AssigneeEmail,
		&talep.AssigneeName,
		&talep.PersonalNote,
		&talep.UpdatedAt,
		&talep.DueDate,
		&talep.SLADeadline,
		&talep.BoardPos,
		&talep.QueuePos,
	); err != nil {
		return nil, err
	}
	return &talep, nil
}

func (r *talepRepository) publish(ctx context.Context, event domain.ChangeEvent) {
	if r.publisher == nil {
		return
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("change event not published", zap.Error(err), zap.String("op", string(event.Op)))
	}
}

func scanTalepler(rows pgx.Rows) ([]domain.Talep, error) {
	var result []domain.Talep
	for rows.Next() {
		var talep domain.Talep
		if err := rows.Scan(
			&talep.ID,
			&talep.Title,
			&talep.Description,
			&talep.Priority,
			&talep.Status,
			&talep.RequesterEmail,
			&talep.RequesterName,
			&talep.AssigneeEmail,
			&talep.AssigneeName,
			&talep.PersonalNote,
			&talep.UpdatedAt,
			&talep.DueDate,
			&talep.SLADeadline,
			&talep.BoardPos,
			&talep.QueuePos,
		); err != nil {
			return nil, err
		}
		result = append(result, talep)
	}
	return result, rows.Err()
}
