package evaluation

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type journalRepoPG struct{ pool *pgxpool.Pool }

func NewJournalRepoPG(pool *pgxpool.Pool) JournalRepository {
	return &journalRepoPG{pool: pool}
}

const journalCols = `id, session_id, unit_id, bed_id, action, method_key, total_points, class_label,
	previous_total_points, previous_class_label, record_number, author_id, author_name, recorded_at`

func (r *journalRepoPG) scanEntry(row pgx.Row) (*JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.SessionID, &e.UnitID, &e.BedID, &e.Action, &e.MethodKey, &e.TotalPoints, &e.ClassLabel,
		&e.PreviousTotalPoints, &e.PreviousClassLabel, &e.RecordNumber, &e.AuthorID, &e.AuthorName, &e.RecordedAt)
	return &e, err
}

func (r *journalRepoPG) Record(ctx context.Context, e *JournalEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO evaluation_journal (id, session_id, unit_id, bed_id, action, method_key, total_points, class_label,
			previous_total_points, previous_class_label, record_number, author_id, author_name, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.SessionID, e.UnitID, e.BedID, e.Action, e.MethodKey, e.TotalPoints, e.ClassLabel,
		e.PreviousTotalPoints, e.PreviousClassLabel, e.RecordNumber, e.AuthorID, e.AuthorName, e.RecordedAt)
	return err
}

func (r *journalRepoPG) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*JournalEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evaluation_journal WHERE session_id = $1`, sessionID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+journalCols+` FROM evaluation_journal WHERE session_id = $1
		ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`, sessionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *journalRepoPG) ListByBed(ctx context.Context, unitID, bedID string, limit, offset int) ([]*JournalEntry, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evaluation_journal WHERE unit_id = $1 AND bed_id = $2`,
		unitID, bedID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+journalCols+` FROM evaluation_journal WHERE unit_id = $1 AND bed_id = $2
		ORDER BY recorded_at DESC LIMIT $3 OFFSET $4`, unitID, bedID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	return items, total, err
}

func (r *journalRepoPG) collect(rows pgx.Rows) ([]*JournalEntry, error) {
	defer rows.Close()
	var items []*JournalEntry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
