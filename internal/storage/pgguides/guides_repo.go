package pgguides

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/BearBump/GuideBox/internal/models"
	"github.com/BearBump/GuideBox/internal/services/guides"
)

const guideColumns = `id, tracking_number, reference, recipient, city, address, status,
	query_date, last_sync_at, notes, source_file, next_check_at, created_at, updated_at`

func scanGuide(row pgx.Row) (*models.Guide, error) {
	var g models.Guide
	err := row.Scan(
		&g.ID, &g.TrackingNumber, &g.Reference, &g.Recipient, &g.City, &g.Address, &g.Status,
		&g.QueryDate, &g.LastSyncAt, &g.Notes, &g.SourceFile, &g.NextCheckAt, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func collectGuides(rows pgx.Rows) ([]*models.Guide, error) {
	defer rows.Close()
	var out []*models.Guide
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan guide")
		}
		out = append(out, g)
	}
	return out, errors.Wrap(rows.Err(), "iterate guides")
}

// InBatch runs fn inside a single transaction. Any error from fn rolls the
// whole batch back.
func (s *Storage) InBatch(ctx context.Context, fn func(ops guides.BatchOps) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&batchOps{q: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

type batchOps struct {
	q pgx.Tx
}

// FindByTrackingNumber locks the row for the rest of the batch so two
// concurrent imports of the same guide serialize instead of clobbering
// each other.
func (b *batchOps) FindByTrackingNumber(ctx context.Context, tn string) (*models.Guide, error) {
	g, err := scanGuide(b.q.QueryRow(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE tracking_number = $1 FOR UPDATE`, tn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select guide by tracking number")
	}
	return g, nil
}

// InsertGuide creates the guide and its first history entry. When a
// concurrent batch beat us to the insert the existing row is returned
// untouched; the caller's next import pass reconciles it.
func (b *batchOps) InsertGuide(ctx context.Context, in models.GuideInput, initial models.StatusChange) (*models.Guide, error) {
	g, err := scanGuide(b.q.QueryRow(ctx, `
		INSERT INTO guides (tracking_number, reference, recipient, city, address, status, query_date, source_file)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tracking_number) DO NOTHING
		RETURNING `+guideColumns,
		in.TrackingNumber, in.Reference, in.Recipient, in.City, in.Address, in.Status, in.QueryDate, in.SourceFile,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return b.FindByTrackingNumber(ctx, in.TrackingNumber)
	}
	if err != nil {
		return nil, errors.Wrap(err, "insert guide")
	}

	if err := insertHistory(ctx, b.q, g.ID, initial); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *batchOps) UpdateGuide(ctx context.Context, upd guides.GuideUpdate) error {
	return applyGuideUpdate(ctx, b.q, upd)
}

func insertHistory(ctx context.Context, q querier, guideID uint64, h models.StatusChange) error {
	_, err := q.Exec(ctx, `
		INSERT INTO guide_history (guide_id, previous_status, new_status, action, changed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		guideID, h.PreviousStatus, h.NewStatus, h.Action, h.ChangedAt,
	)
	return errors.Wrap(err, "insert history")
}

func applyGuideUpdate(ctx context.Context, q querier, upd guides.GuideUpdate) error {
	set := []string{"updated_at = now()"}
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if upd.SetContact {
		set = append(set,
			"reference = "+arg(upd.Reference),
			"recipient = "+arg(upd.Recipient),
			"city = "+arg(upd.City),
			"address = "+arg(upd.Address),
			"source_file = "+arg(upd.SourceFile),
		)
	}
	if upd.SetStatus {
		set = append(set,
			"status = "+arg(upd.Status),
			"query_date = "+arg(upd.QueryDate),
			"last_sync_at = "+arg(upd.LastSyncAt),
			"notes = "+arg(upd.Notes),
		)
	}
	if upd.NextCheckAt != nil {
		set = append(set, "next_check_at = "+arg(*upd.NextCheckAt))
	}

	sql := "UPDATE guides SET " + strings.Join(set, ", ") + " WHERE id = " + arg(upd.GuideID)
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return errors.Wrap(err, "update guide")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("guide %d not found", upd.GuideID)
	}

	if upd.History != nil {
		return insertHistory(ctx, q, upd.GuideID, *upd.History)
	}
	return nil
}

// UpdateGuide applies one change set outside a batch. The row update and
// its history entry commit together.
func (s *Storage) UpdateGuide(ctx context.Context, upd guides.GuideUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := applyGuideUpdate(ctx, tx, upd); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

func (s *Storage) GetGuide(ctx context.Context, id uint64) (*models.Guide, error) {
	g, err := scanGuide(s.pool.QueryRow(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select guide")
	}
	return g, nil
}

func (s *Storage) ListGuides(ctx context.Context, f guides.ListFilter) ([]*models.Guide, int, error) {
	where := []string{"TRUE"}
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		where = append(where, "status = "+arg(f.Status))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		where = append(where, fmt.Sprintf(
			"(tracking_number ILIKE %s OR recipient ILIKE %s OR reference ILIKE %s OR address ILIKE %s OR city ILIKE %s)",
			p, p, p, p, p))
	}
	if f.DateFrom != nil {
		where = append(where, "created_at >= "+arg(*f.DateFrom))
	}
	if f.DateTo != nil {
		where = append(where, "created_at <= "+arg(*f.DateTo))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM guides WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count guides")
	}

	sql := fmt.Sprintf(
		"SELECT "+guideColumns+" FROM guides WHERE %s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s",
		cond, arg(f.PerPage), arg((f.Page-1)*f.PerPage))
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "select guides")
	}
	out, err := collectGuides(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Storage) ListAllGuides(ctx context.Context) ([]*models.Guide, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+guideColumns+` FROM guides ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "select all guides")
	}
	return collectGuides(rows)
}

func (s *Storage) ListSyncableGuides(ctx context.Context) ([]*models.Guide, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE status = ANY($1) ORDER BY id`,
		[]string{models.StatusPending, models.StatusInProgress})
	if err != nil {
		return nil, errors.Wrap(err, "select syncable guides")
	}
	return collectGuides(rows)
}

// ClaimDueGuides leases up to limit due guides to the caller by pushing
// next_check_at forward. SKIP LOCKED keeps concurrent workers off the same
// rows; a crashed worker's claims come due again once the lease elapses.
func (s *Storage) ClaimDueGuides(ctx context.Context, limit int, lease time.Duration) ([]*models.Guide, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE guides SET next_check_at = now() + $1
		WHERE id IN (
			SELECT id FROM guides
			WHERE next_check_at <= now() AND status = ANY($2)
			ORDER BY next_check_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+guideColumns,
		lease, []string{models.StatusPending, models.StatusInProgress}, limit)
	if err != nil {
		return nil, errors.Wrap(err, "claim due guides")
	}
	return collectGuides(rows)
}

func (s *Storage) ListHistory(ctx context.Context, guideID uint64, limit, offset int) ([]*models.StatusChange, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, guide_id, previous_status, new_status, action, changed_at
		FROM guide_history
		WHERE guide_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		guideID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select history")
	}
	defer rows.Close()

	var out []*models.StatusChange
	for rows.Next() {
		var h models.StatusChange
		if err := rows.Scan(&h.ID, &h.GuideID, &h.PreviousStatus, &h.NewStatus, &h.Action, &h.ChangedAt); err != nil {
			return nil, errors.Wrap(err, "scan history")
		}
		out = append(out, &h)
	}
	return out, errors.Wrap(rows.Err(), "iterate history")
}

func (s *Storage) LatestChange(ctx context.Context, guideID uint64) (*models.StatusChange, error) {
	var h models.StatusChange
	err := s.pool.QueryRow(ctx, `
		SELECT id, guide_id, previous_status, new_status, action, changed_at
		FROM guide_history
		WHERE guide_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT 1`,
		guideID).Scan(&h.ID, &h.GuideID, &h.PreviousStatus, &h.NewStatus, &h.Action, &h.ChangedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest change")
	}
	return &h, nil
}

func (s *Storage) RescheduleGuide(ctx context.Context, id uint64, nextCheckAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE guides SET next_check_at = $2, updated_at = now() WHERE id = $1`,
		id, nextCheckAt)
	return errors.Wrap(err, "reschedule guide")
}

func (s *Storage) DeleteGuide(ctx context.Context, id uint64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM guides WHERE id = $1`, id)
	if err != nil {
		return false, errors.Wrap(err, "delete guide")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Storage) DeleteGuides(ctx context.Context, ids []uint64) (int64, error) {
	int64IDs := make([]int64, len(ids))
	for i, id := range ids {
		int64IDs[i] = int64(id)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM guides WHERE id = ANY($1)`, int64IDs)
	if err != nil {
		return 0, errors.Wrap(err, "delete guides")
	}
	return tag.RowsAffected(), nil
}

func (s *Storage) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM guides GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "count by status")
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, "scan count")
		}
		out[status] = n
	}
	return out, errors.Wrap(rows.Err(), "iterate counts")
}

func (s *Storage) CountSyncedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM guides WHERE last_sync_at >= $1`, since).Scan(&n)
	return n, errors.Wrap(err, "count synced since")
}
