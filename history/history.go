// Package history keeps a per-owner log of completed scrapes so runs of the
// same storefront can be compared over time.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned when a run does not exist or belongs to another owner.
var ErrNotFound = errors.New("history: run not found")

// Site list paging bounds.
const (
	DefaultPageSize = 5
	MaxPageSize     = 50
)

// Store persists scrape runs. Every method is scoped to an owner.
type Store interface {
	// Insert records a run and returns its id. url is normalized with NormalizeURL.
	Insert(ctx context.Context, owner, url, platform string, products json.RawMessage) (int64, error)

	Get(ctx context.Context, owner string, id int64) (*Run, error)

	// Previous returns the latest run of url with an id lower than beforeID.
	Previous(ctx context.Context, owner, url string, beforeID int64) (*Run, error)

	Delete(ctx context.Context, owner string, id int64) error

	// DeleteByURL removes every run of url and reports how many were removed.
	DeleteByURL(ctx context.Context, owner, url string) (int64, error)

	ListSites(ctx context.Context, owner string, q SiteQuery) (*SitePage, error)

	Close() error
}

// Run is one stored scrape.
type Run struct {
	ID        int64           `json:"id"`
	URL       string          `json:"url"`
	Platform  string          `json:"platform"`
	CreatedAt time.Time       `json:"created_at"`
	Products  json.RawMessage `json:"products"`
}

// RunRef identifies a run in a site listing.
type RunRef struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SiteSummary groups the runs of one storefront.
type SiteSummary struct {
	URL       string   `json:"url"`
	Runs      []RunRef `json:"runs"`
	LatestRun *Run     `json:"latest_run"`
}

// SiteQuery filters and pages the site list.
type SiteQuery struct {
	Query    string
	Page     int
	PageSize int
}

// SitePage is one page of the site list, most recently scraped first.
type SitePage struct {
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
	Sites      []SiteSummary `json:"sites"`
}

var (
	reScheme        = regexp.MustCompile(`(?i)^https?://`)
	reTrailingSlash = regexp.MustCompile(`/+$`)
)

// NormalizeURL reduces a storefront URL to the key runs are grouped by:
// no scheme, no trailing slash, lower case.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = reScheme.ReplaceAllString(u, "")
	u = reTrailingSlash.ReplaceAllString(u, "")
	return strings.ToLower(u)
}

// Open returns the store for driver, or nil for driver "none".
func Open(ctx context.Context, driver, dsn string, maxConns int) (Store, error) {
	switch driver {
	case "sqlite":
		s, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, dsn, maxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("history: unknown driver %q", driver)
	}
}

func (q SiteQuery) normalized() SiteQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = DefaultPageSize
	case q.PageSize > MaxPageSize:
		q.PageSize = MaxPageSize
	}
	q.Query = strings.ToLower(strings.TrimSpace(q.Query))
	return q
}

func (q SiteQuery) offset() int {
	return (q.Page - 1) * q.PageSize
}

// likePattern matches q as a literal substring; LIKE wildcards in q are escaped with '\'.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func totalPages(total, pageSize int) int {
	if total <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}

func productsOrEmpty(products json.RawMessage) string {
	if len(products) == 0 {
		return "[]"
	}
	return string(products)
}
