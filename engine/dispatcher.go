package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
)

// Engine dispatches a scrape request to the first strategy that recognises
// the store. Strategies are probed strictly in registration order, one at a
// time, and each probe runs exactly once per Execute call.
//
// An Engine is immutable after New and safe for concurrent use.
type Engine struct {
	strategies []Strategy
}

// New creates an Engine probing strategies in the given order.
func New(strategies ...Strategy) *Engine {
	list := make([]Strategy, len(strategies))
	copy(list, strategies)
	return &Engine{strategies: list}
}

// Strategies describes the registered strategies in probe order.
func (e *Engine) Strategies() []models.StrategyInfo {
	out := make([]models.StrategyInfo, 0, len(e.strategies))
	for _, s := range e.strategies {
		out = append(out, models.StrategyInfo{Name: s.Name(), Description: s.Description()})
	}
	return out
}

// Execute runs the first matching strategy's Scrape and returns its result
// unchanged, including its error. When no strategy matches it returns an
// *ExecutionError carrying the classified reason and every attempt.
func (e *Engine) Execute(ctx context.Context, req Request, onProgress ProgressFunc) (*models.NormalizedScrapeResult, error) {
	attempts := make([]models.AttemptDiagnostic, 0, len(e.strategies))

	for _, s := range e.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		slog.Debug("probing strategy", "strategy", s.Name(), "url", req.URL)
		match, err := probe(ctx, s, req.URL)
		if err != nil {
			slog.Debug("strategy probe failed", "strategy", s.Name(), "url", req.URL, "error", err)
			attempts = append(attempts, models.AttemptDiagnostic{
				Strategy: s.Name(),
				Error:    err.Error(),
			})
			continue
		}

		if match.IsMatch {
			slog.Info("strategy matched", "strategy", s.Name(), "url", req.URL)
			return s.Scrape(ctx, req, onProgress)
		}

		attempts = append(attempts, models.AttemptDiagnostic{
			Strategy: s.Name(),
			Status:   match.Status,
			Endpoint: match.Endpoint,
			Error:    match.Error,
		})
	}

	analysis := AnalyzeFailedAttempts(attempts)
	slog.Warn("no strategy matched",
		"url", req.URL,
		"reason", analysis.Reason,
		"attempts", attempts,
	)
	return nil, &ExecutionError{
		Reason:   analysis.Reason,
		Message:  analysis.Message,
		Attempts: attempts,
	}
}

// probe calls s.Match and turns a panic into an error so one broken
// strategy cannot abort the whole run.
func probe(ctx context.Context, s Strategy, storeURL string) (result MatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: match panicked: %v", s.Name(), r)
		}
	}()
	return s.Match(ctx, storeURL)
}
