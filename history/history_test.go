package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Shop.Example.com/", "shop.example.com"},
		{"  http://shop.example.com///  ", "shop.example.com"},
		{"HTTPS://shop.example.com/collections/All", "shop.example.com/collections/all"},
		{"shop.example.com", "shop.example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestSiteQueryNormalized(t *testing.T) {
	tests := []struct {
		in       SiteQuery
		page     int
		pageSize int
	}{
		{SiteQuery{}, 1, DefaultPageSize},
		{SiteQuery{Page: -3, PageSize: 500}, 1, MaxPageSize},
		{SiteQuery{Page: 4, PageSize: 7}, 4, 7},
	}
	for _, tt := range tests {
		q := tt.in.normalized()
		assert.Equal(t, tt.page, q.Page)
		assert.Equal(t, tt.pageSize, q.PageSize)
	}
	assert.Equal(t, 10, SiteQuery{Page: 3, PageSize: 5}.offset())
}

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, totalPages(0, 5))
	assert.Equal(t, 1, totalPages(5, 5))
	assert.Equal(t, 2, totalPages(6, 5))
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%50\%\_off%`, likePattern("50%_off"))
	assert.Equal(t, "%%", likePattern(""))
}

func TestOpen_None(t *testing.T) {
	s, err := Open(context.Background(), "none", "", 0)
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(context.Background(), "mysql", "x", 0)
	assert.Error(t, err)
}

// storeSuite runs the behaviour every Store implementation shares.
func storeSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	products := json.RawMessage(`[{"id":"1","title":"Shirt"}]`)

	t.Run("insert and get", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Insert(ctx, "alice", "https://Shop.Test/", "shopify", products)
		require.NoError(t, err)

		run, err := s.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.Equal(t, "shop.test", run.URL)
		assert.Equal(t, "shopify", run.Platform)
		assert.JSONEq(t, string(products), string(run.Products))
		assert.False(t, run.CreatedAt.IsZero())
	})

	t.Run("owner isolation", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Insert(ctx, "alice", "shop.test", "shopify", products)
		require.NoError(t, err)

		_, err = s.Get(ctx, "bob", id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "bob", id), ErrNotFound)
	})

	t.Run("nil products stored as empty list", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Insert(ctx, "alice", "shop.test", "", nil)
		require.NoError(t, err)
		run, err := s.Get(ctx, "alice", id)
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(run.Products))
	})

	t.Run("previous", func(t *testing.T) {
		s := newStore(t)
		first, err := s.Insert(ctx, "alice", "shop.test", "shopify", json.RawMessage(`[1]`))
		require.NoError(t, err)
		_, err = s.Insert(ctx, "alice", "other.test", "shopify", json.RawMessage(`[2]`))
		require.NoError(t, err)
		third, err := s.Insert(ctx, "alice", "https://shop.test", "shopify", json.RawMessage(`[3]`))
		require.NoError(t, err)

		prev, err := s.Previous(ctx, "alice", "shop.test", third)
		require.NoError(t, err)
		assert.Equal(t, first, prev.ID)

		_, err = s.Previous(ctx, "alice", "shop.test", first)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Insert(ctx, "alice", "shop.test", "shopify", products)
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "alice", id))
		_, err = s.Get(ctx, "alice", id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "alice", id), ErrNotFound)
	})

	t.Run("delete by url", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 3; i++ {
			_, err := s.Insert(ctx, "alice", "shop.test", "shopify", products)
			require.NoError(t, err)
		}
		keep, err := s.Insert(ctx, "alice", "keep.test", "shopify", products)
		require.NoError(t, err)

		n, err := s.DeleteByURL(ctx, "alice", "HTTPS://shop.test/")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		_, err = s.Get(ctx, "alice", keep)
		assert.NoError(t, err)
	})

	t.Run("list sites", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 7; i++ {
			_, err := s.Insert(ctx, "alice", fmt.Sprintf("store%d.test", i), "shopify", products)
			require.NoError(t, err)
		}
		latest, err := s.Insert(ctx, "alice", "store0.test", "woocommerce", json.RawMessage(`[]`))
		require.NoError(t, err)
		_, err = s.Insert(ctx, "bob", "bob.test", "shopify", products)
		require.NoError(t, err)

		page, err := s.ListSites(ctx, "alice", SiteQuery{})
		require.NoError(t, err)
		assert.Equal(t, 7, page.Total)
		assert.Equal(t, 2, page.TotalPages)
		assert.Equal(t, DefaultPageSize, page.PageSize)
		require.Len(t, page.Sites, DefaultPageSize)

		top := page.Sites[0]
		assert.Equal(t, "store0.test", top.URL)
		require.Len(t, top.Runs, 2)
		assert.Equal(t, latest, top.Runs[0].ID)
		require.NotNil(t, top.LatestRun)
		assert.Equal(t, latest, top.LatestRun.ID)
		assert.Equal(t, "woocommerce", top.LatestRun.Platform)

		second, err := s.ListSites(ctx, "alice", SiteQuery{Page: 2})
		require.NoError(t, err)
		assert.Len(t, second.Sites, 2)

		filtered, err := s.ListSites(ctx, "alice", SiteQuery{Query: "STORE3"})
		require.NoError(t, err)
		assert.Equal(t, 1, filtered.Total)
		require.Len(t, filtered.Sites, 1)
		assert.Equal(t, "store3.test", filtered.Sites[0].URL)

		none, err := s.ListSites(ctx, "alice", SiteQuery{Query: "%"})
		require.NoError(t, err)
		assert.Equal(t, 0, none.Total)
		assert.Equal(t, 1, none.TotalPages)
		assert.NotNil(t, none.Sites)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeSuite(t, func(t *testing.T) Store {
		s, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("STOREFRONT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STOREFRONT_TEST_POSTGRES_DSN not set")
	}
	storeSuite(t, func(t *testing.T) Store {
		ctx := context.Background()
		s, err := OpenPostgres(ctx, dsn, 4)
		require.NoError(t, err)
		_, err = s.pool.Exec(ctx, `TRUNCATE scrapes`)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}
