package strategy

import (
	"context"

	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/hvpham-yorku/group1-competitor-intelligence/normalize"
)

// Universal is the slot reserved for generic extraction of stores no
// platform strategy recognises. Match never succeeds, so the engine never
// calls Scrape; it is reachable only by calling it directly.
type Universal struct{}

// NewUniversal creates the Universal strategy.
func NewUniversal() *Universal { return &Universal{} }

func (u *Universal) Name() string { return "Universal" }

func (u *Universal) Description() string {
	return "Placeholder for generic extraction; does not match any store yet"
}

func (u *Universal) Match(_ context.Context, _ string) (engine.MatchResult, error) {
	return engine.MatchResult{IsMatch: false, Data: normalize.Empty()}, nil
}

func (u *Universal) Scrape(_ context.Context, req engine.Request, _ engine.ProgressFunc) (*models.NormalizedScrapeResult, error) {
	return models.NewScrapeResult(models.PlatformUniversal, req.URL, nil), nil
}
