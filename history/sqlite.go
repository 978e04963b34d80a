package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS scrapes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	owner         TEXT    NOT NULL,
	url           TEXT    NOT NULL,
	platform      TEXT    NOT NULL DEFAULT '',
	products_json TEXT    NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scrapes_owner_url ON scrapes(owner, url, created_at);
`

// SQLiteStore keeps history in a SQLite file. Timestamps are stored as
// unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore applies pragmas and the schema to an open database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("history: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("history: migrate sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("history: ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, owner, url, platform string, products json.RawMessage) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scrapes (owner, url, platform, products_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		owner, NormalizeURL(url), platform, productsOrEmpty(products), time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("history: insert id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Get(ctx context.Context, owner string, id int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, platform, products_json, created_at FROM scrapes WHERE owner = ? AND id = ?`,
		owner, id,
	)
	return scanSQLiteRun(row)
}

func (s *SQLiteStore) Previous(ctx context.Context, owner, url string, beforeID int64) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, url, platform, products_json, created_at FROM scrapes
		 WHERE owner = ? AND url = ? AND id < ?
		 ORDER BY id DESC LIMIT 1`,
		owner, NormalizeURL(url), beforeID,
	)
	return scanSQLiteRun(row)
}

func (s *SQLiteStore) Delete(ctx context.Context, owner string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scrapes WHERE owner = ? AND id = ?`, owner, id)
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteByURL(ctx context.Context, owner, url string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scrapes WHERE owner = ? AND url = ?`, owner, NormalizeURL(url))
	if err != nil {
		return 0, fmt.Errorf("history: delete site: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) ListSites(ctx context.Context, owner string, q SiteQuery) (*SitePage, error) {
	q = q.normalized()
	pattern := likePattern(q.Query)

	page := &SitePage{Page: q.Page, PageSize: q.PageSize, Sites: []SiteSummary{}}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT url) FROM scrapes WHERE owner = ? AND url LIKE ? ESCAPE '\'`,
		owner, pattern,
	).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("history: count sites: %w", err)
	}
	page.TotalPages = totalPages(page.Total, q.PageSize)

	rows, err := s.db.QueryContext(ctx,
		`SELECT url FROM scrapes WHERE owner = ? AND url LIKE ? ESCAPE '\'
		 GROUP BY url ORDER BY MAX(created_at) DESC, MAX(id) DESC
		 LIMIT ? OFFSET ?`,
		owner, pattern, q.PageSize, q.offset(),
	)
	if err != nil {
		return nil, fmt.Errorf("history: list sites: %w", err)
	}
	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			rows.Close()
			return nil, fmt.Errorf("history: list sites: %w", err)
		}
		urls = append(urls, u)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
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

func (s *SQLiteStore) site(ctx context.Context, owner, url string) (SiteSummary, error) {
	site := SiteSummary{URL: url, Runs: []RunRef{}}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at FROM scrapes WHERE owner = ? AND url = ? ORDER BY created_at DESC, id DESC`,
		owner, url,
	)
	if err != nil {
		return site, fmt.Errorf("history: list runs: %w", err)
	}
	for rows.Next() {
		var ref RunRef
		var ms int64
		if err := rows.Scan(&ref.ID, &ms); err != nil {
			rows.Close()
			return site, fmt.Errorf("history: list runs: %w", err)
		}
		ref.CreatedAt = time.UnixMilli(ms).UTC()
		site.Runs = append(site.Runs, ref)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return site, fmt.Errorf("history: list runs: %w", err)
	}

	if len(site.Runs) > 0 {
		latest, err := s.Get(ctx, owner, site.Runs[0].ID)
		if err != nil {
			return site, err
		}
		site.LatestRun = latest
	}
	return site, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteRun(row *sql.Row) (*Run, error) {
	var (
		r        Run
		products string
		ms       int64
	)
	if err := row.Scan(&r.ID, &r.URL, &r.Platform, &products, &ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("history: scan run: %w", err)
	}
	r.Products = json.RawMessage(products)
	r.CreatedAt = time.UnixMilli(ms).UTC()
	return &r, nil
}
