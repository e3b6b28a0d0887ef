package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wpfleet/internal/domain"
	"wpfleet/internal/ports"
)

// SiteStore implements ports.SiteRepository over the shared pool.
type SiteStore struct {
	pool *pgxpool.Pool
}

func NewSiteStore(db *DB) *SiteStore { return &SiteStore{pool: db.Pool} }

const siteColumns = `id, name, base_url, api_key, last_sync_at, last_sync_status, created_at`

func (s *SiteStore) Create(ctx context.Context, site domain.Site) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO sites (id, name, base_url, api_key, last_sync_status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, site.ID, site.Name, site.BaseURL, site.APIKey, site.LastSyncStatus, site.CreatedAt)
	return err
}

func (s *SiteStore) GetByID(ctx context.Context, id string) (domain.Site, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, id)
	return scanSite(row)
}

func (s *SiteStore) List(ctx context.Context) ([]domain.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sites := make([]domain.Site, 0)
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (s *SiteStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sites WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (s *SiteStore) RecordSync(ctx context.Context, id string, status domain.SyncStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
        UPDATE sites SET last_sync_at = $2, last_sync_status = $3 WHERE id = $1
    `, id, at, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func scanSite(row pgx.Row) (domain.Site, error) {
	var out domain.Site
	err := row.Scan(&out.ID, &out.Name, &out.BaseURL, &out.APIKey, &out.LastSyncAt, &out.LastSyncStatus, &out.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ports.ErrNotFound
	}
	return out, err
}
