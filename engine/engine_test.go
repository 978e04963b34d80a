package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	name      string
	match     MatchResult
	matchErr  error
	panicMsg  string
	result    *models.NormalizedScrapeResult
	scrapeErr error

	matchCalls  int
	scrapeCalls int
}

func (f *fakeStrategy) Name() string        { return f.name }
func (f *fakeStrategy) Description() string { return f.name + " test strategy" }

func (f *fakeStrategy) Match(_ context.Context, _ string) (MatchResult, error) {
	f.matchCalls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.match, f.matchErr
}

func (f *fakeStrategy) Scrape(_ context.Context, req Request, onProgress ProgressFunc) (*models.NormalizedScrapeResult, error) {
	f.scrapeCalls++
	onProgress.Emit(models.ScrapeProgress{Page: 1, Message: "scraping"})
	if f.scrapeErr != nil {
		return nil, f.scrapeErr
	}
	return f.result, nil
}

func notFound(name, endpoint string) *fakeStrategy {
	return &fakeStrategy{name: name, match: MatchResult{Status: 404, Error: "Resource not found", Endpoint: endpoint}}
}

func TestExecute_FirstMatchWins(t *testing.T) {
	first := notFound("First", "https://shop.test/a")
	second := &fakeStrategy{
		name:   "Second",
		match:  MatchResult{IsMatch: true, Status: 200},
		result: models.NewScrapeResult("second", "https://shop.test", []models.NormalizedProduct{{Title: "x"}}),
	}
	third := &fakeStrategy{name: "Third", match: MatchResult{IsMatch: true}}

	eng := New(first, second, third)
	req, err := NewRequest("shop.test", "")
	require.NoError(t, err)

	var progress []models.ScrapeProgress
	res, err := eng.Execute(context.Background(), req, func(p models.ScrapeProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "second", res.Platform)
	assert.Equal(t, 1, res.TotalCount)
	assert.Len(t, progress, 1)

	assert.Equal(t, 1, first.matchCalls)
	assert.Equal(t, 1, second.matchCalls)
	assert.Equal(t, 1, second.scrapeCalls)
	assert.Equal(t, 0, third.matchCalls, "strategies after the winner are never probed")
	assert.Equal(t, 0, first.scrapeCalls)
}

func TestExecute_ScrapeErrorPropagates(t *testing.T) {
	boom := errors.New("shopify: decode page 2: unexpected end of JSON input")
	matched := &fakeStrategy{name: "Matched", match: MatchResult{IsMatch: true}, scrapeErr: boom}
	later := &fakeStrategy{name: "Later", match: MatchResult{IsMatch: true}}

	_, err := New(matched, later).Execute(context.Background(), Request{URL: "https://shop.test"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var execErr *ExecutionError
	assert.False(t, errors.As(err, &execErr))
	assert.Equal(t, 0, later.matchCalls)
}

func TestExecute_NoMatch(t *testing.T) {
	eng := New(
		notFound("Shopify", "https://shop.test/products.json?limit=250"),
		notFound("WooCommerce", "https://shop.test/wp-json/wc/store/v1/products"),
		&fakeStrategy{name: "Universal"},
	)

	_, err := eng.Execute(context.Background(), Request{URL: "https://shop.test"}, nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.ReasonUnsupported, execErr.Reason)
	assert.Equal(t, MessageUnsupported, execErr.Message)
	require.Len(t, execErr.Attempts, 3)
	assert.Equal(t, "Shopify", execErr.Attempts[0].Strategy)
	assert.Equal(t, 404, execErr.Attempts[0].Status)
	assert.Equal(t, "https://shop.test/products.json?limit=250", execErr.Attempts[0].Endpoint)
	assert.Equal(t, "Universal", execErr.Attempts[2].Strategy)
}

func TestExecute_ProbeErrorsAreDiagnostics(t *testing.T) {
	failing := &fakeStrategy{name: "Failing", matchErr: errors.New("network socket closed")}
	panicking := &fakeStrategy{name: "Panicking", panicMsg: "nil map"}
	blocked := &fakeStrategy{name: "Blocked", match: MatchResult{Status: 403, Error: "Forbidden"}}

	_, err := New(failing, panicking, blocked).Execute(context.Background(), Request{URL: "https://shop.test"}, nil)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Len(t, execErr.Attempts, 3)
	assert.Equal(t, "network socket closed", execErr.Attempts[0].Error)
	assert.Contains(t, execErr.Attempts[1].Error, "panicked")
	assert.Equal(t, models.ReasonBlocked, execErr.Reason)
	assert.Equal(t, 1, blocked.matchCalls)
}

func TestExecute_ContextCancelled(t *testing.T) {
	s := &fakeStrategy{name: "Any", match: MatchResult{IsMatch: true}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(s).Execute(ctx, Request{URL: "https://shop.test"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.matchCalls)
}

func TestStrategies(t *testing.T) {
	eng := New(notFound("A", ""), notFound("B", ""))
	infos := eng.Strategies()
	require.Len(t, infos, 2)
	assert.Equal(t, "A", infos[0].Name)
	assert.Equal(t, "B test strategy", infos[1].Description)
}

func TestNewRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"bare host", "shop.test", "https://shop.test", false},
		{"trailing slashes", "https://shop.test//", "https://shop.test", false},
		{"keeps http", "http://shop.test/en", "http://shop.test/en", false},
		{"trims space", "  shop.test/  ", "https://shop.test", false},
		{"empty", "   ", "", true},
		{"ftp", "ftp://shop.test", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := NewRequest(tt.raw, "")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.URL)
			assert.Equal(t, models.DescriptionHTML, req.DescriptionFormat)
		})
	}
}
