package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wpfleet/internal/domain"
	"wpfleet/internal/ports"
)

// ScanStore implements ports.ScanRepository. Append-only: records enter as
// pending and are frozen at their first terminal status.
type ScanStore struct {
	pool *pgxpool.Pool
}

func NewScanStore(db *DB) *ScanStore { return &ScanStore{pool: db.Pool} }

const scanColumns = `id, site_id, scan_type, status, started_at, completed_at, overall_score, findings, raw_data, error`

func (s *ScanStore) Create(ctx context.Context, rec domain.ScanRecord) error {
	findings, err := marshalFindings(rec.Findings)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
        INSERT INTO scan_records (id, site_id, scan_type, status, started_at, overall_score, findings, raw_data, error)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, rec.ID, rec.SiteID, rec.ScanType, rec.Status, rec.StartedAt, rec.OverallScore, findings, rec.RawData, rec.Error)
	return err
}

// ClaimNext locks the oldest pending record and marks it running. SKIP
// LOCKED keeps concurrent workers from contending for the same record.
func (s *ScanStore) ClaimNext(ctx context.Context) (rec domain.ScanRecord, found bool, err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return rec, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var id string
	err = tx.QueryRow(ctx, `
        SELECT id FROM scan_records
        WHERE status = 'pending'
        ORDER BY started_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}

	row := tx.QueryRow(ctx, `
        UPDATE scan_records SET status = 'running' WHERE id = $1
        RETURNING `+scanColumns+`
    `, id)
	rec, err = scanRecord(row)
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

// Start claims one specific pending record for the inline scan path.
func (s *ScanStore) Start(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
        UPDATE scan_records SET status = 'running'
        WHERE id = $1 AND status = 'pending'
    `, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Complete freezes a running record as completed. Terminal records are
// never updated; a rescan is a new record.
func (s *ScanStore) Complete(ctx context.Context, id string, score int, findings []domain.Finding, raw json.RawMessage, completedAt time.Time) error {
	buf, err := marshalFindings(findings)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
        UPDATE scan_records
        SET status = 'completed', overall_score = $2, findings = $3, raw_data = $4, completed_at = $5
        WHERE id = $1 AND status = 'running'
    `, id, score, buf, raw, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.mutationConflict(ctx, id)
	}
	return nil
}

// Fail freezes a pending or running record as failed.
func (s *ScanStore) Fail(ctx context.Context, id string, reason string, completedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE scan_records
        SET status = 'failed', error = $2, completed_at = $3
        WHERE id = $1 AND status IN ('pending', 'running')
    `, id, reason, completedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.mutationConflict(ctx, id)
	}
	return nil
}

func (s *ScanStore) mutationConflict(ctx context.Context, id string) error {
	var status domain.ScanStatus
	err := s.pool.QueryRow(ctx, `SELECT status FROM scan_records WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ErrNotFound
	}
	if err != nil {
		return err
	}
	return ports.ErrRecordTerminal
}

func (s *ScanStore) GetByID(ctx context.Context, id string) (domain.ScanRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+scanColumns+` FROM scan_records WHERE id = $1`, id)
	return scanRecord(row)
}

func (s *ScanStore) Latest(ctx context.Context, siteID string, scanType domain.ScanType) (domain.ScanRecord, bool, error) {
	row := s.pool.QueryRow(ctx, `
        SELECT `+scanColumns+` FROM scan_records
        WHERE site_id = $1 AND scan_type = $2 AND status = 'completed'
        ORDER BY completed_at DESC
        LIMIT 1
    `, siteID, scanType)
	rec, err := scanRecord(row)
	if errors.Is(err, ports.ErrNotFound) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	return rec, true, nil
}

func (s *ScanStore) History(ctx context.Context, siteID string, scanType domain.ScanType, limit int) ([]domain.ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
        SELECT `+scanColumns+` FROM scan_records
        WHERE site_id = $1 AND scan_type = $2 AND status IN ('completed', 'failed')
        ORDER BY completed_at DESC
        LIMIT $3
    `, siteID, scanType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ScanRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (domain.ScanRecord, error) {
	var (
		rec      domain.ScanRecord
		findings []byte
	)
	err := row.Scan(&rec.ID, &rec.SiteID, &rec.ScanType, &rec.Status, &rec.StartedAt,
		&rec.CompletedAt, &rec.OverallScore, &findings, &rec.RawData, &rec.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, ports.ErrNotFound
	}
	if err != nil {
		return rec, err
	}
	if len(findings) > 0 {
		if err := json.Unmarshal(findings, &rec.Findings); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func marshalFindings(findings []domain.Finding) ([]byte, error) {
	if findings == nil {
		findings = []domain.Finding{}
	}
	return json.Marshal(findings)
}
