package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scrapes (
	id         BIGSERIAL   PRIMARY KEY,
	owner      TEXT        NOT NULL,
	url        TEXT        NOT NULL,
	platform   TEXT        NOT NULL DEFAULT '',
	products   JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_scrapes_owner_url ON scrapes(owner, url, created_at DESC);
`

// PostgresStore keeps history in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool to dsn and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, owner, url, platform string, products json.RawMessage) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO scrapes (owner, url, platform, products) VALUES ($1, $2, $3, $4::jsonb) RETURNING id`,
		owner, NormalizeURL(url), platform, productsOrEmpty(products),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("history: insert: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Get(ctx context.Context, owner string, id int64) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, platform, products::text, created_at FROM scrapes WHERE owner = $1 AND id = $2`,
		owner, id,
	)
	return scanPostgresRun(row)
}

func (s *PostgresStore) Previous(ctx context.Context, owner, url string, beforeID int64) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, url, platform, products::text, created_at FROM scrapes
		 WHERE owner = $1 AND url = $2 AND id < $3
		 ORDER BY id DESC LIMIT 1`,
		owner, NormalizeURL(url), beforeID,
	)
	return scanPostgresRun(row)
}

func (s *PostgresStore) Delete(ctx context.Context, owner string, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scrapes WHERE owner = $1 AND id = $2`, owner, id)
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByURL(ctx context.Context, owner, url string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scrapes WHERE owner = $1 AND url = $2`, owner, NormalizeURL(url))
	if err != nil {
		return 0, fmt.Errorf("history: delete site: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) ListSites(ctx context.Context, owner string, q SiteQuery) (*SitePage, error) {
	q = q.normalized()
	pattern := likePattern(q.Query)

	page := &SitePage{Page: q.Page, PageSize: q.PageSize, Sites: []SiteSummary{}}
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT url) FROM scrapes WHERE owner = $1 AND url LIKE $2`,
		owner, pattern,
	).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("history: count sites: %w", err)
	}
	page.TotalPages = totalPages(page.Total, q.PageSize)

	rows, err := s.pool.Query(ctx,
		`SELECT url FROM scrapes WHERE owner = $1 AND url LIKE $2
		 GROUP BY url ORDER BY MAX(created_at) DESC, MAX(id) DESC
		 LIMIT $3 OFFSET $4`,
		owner, pattern, q.PageSize, q.offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("history: list sites: %w", err)
	}
	urls, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("history: list sites: %w", err)
	}

	for _, u := range urls {
		site, err := s.site(ctx, owner, u)
		if err != nil {
			return nil, err
		}
		page.Sites = append(page.Sites, site)
	}
	return page, nil
}

func (s *PostgresStore) site(ctx context.Context, owner, url string) (SiteSummary, error) {
	site := SiteSummary{URL: url, Runs: []RunRef{}}

	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at FROM scrapes WHERE owner = $1 AND url = $2 ORDER BY created_at DESC, id DESC`,
		owner, url,
	)
	if err != nil {
		return site, fmt.Errorf("history: list runs: %w", err)
	}
	refs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RunRef, error) {
		var ref RunRef
		err := row.Scan(&ref.ID, &ref.CreatedAt)
		return ref, err
	})
	if err != nil {
		return site, fmt.Errorf("history: list runs: %w", err)
	}
	site.Runs = append(site.Runs, refs...)

	if len(site.Runs) > 0 {
		latest, err := s.Get(ctx, owner, site.Runs[0].ID)
		if err != nil {
			return site, err
		}
		site.LatestRun = latest
	}
	return site, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresRun(row pgx.Row) (*Run, error) {
	var (
		r        Run
		products string
	)
	if err := row.Scan(&r.ID, &r.URL, &r.Platform, &products, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("history: scan run: %w", err)
	}
	r.Products = json.RawMessage(products)
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
