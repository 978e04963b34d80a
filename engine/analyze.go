package engine

import (
	"net/http"
	"regexp"

	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
)

// User-facing messages, one per failure reason.
const (
	MessageBlocked     = "The store blocked automated requests. Try again later or use a browser-based fallback."
	MessageUnreachable = "The store could not be reached. Check the URL and your connection."
	MessageUnsupported = "This store's format is not currently supported."
)

var (
	reBlocked     = regexp.MustCompile(`(?i)forbidden|too many requests|rate limit`)
	reUnreachable = regexp.MustCompile(`(?i)domain could not be reached|network|timed out|enotfound`)
)

// Analysis is the classification of a failed Execute call.
type Analysis struct {
	Reason  models.FailureReason
	Message string
}

// AnalyzeFailedAttempts classifies the diagnostics of every strategy that
// did not match. Rules are checked in order and the first hit wins:
// blocked, then unreachable, then unsupported.
func AnalyzeFailedAttempts(attempts []models.AttemptDiagnostic) Analysis {
	for _, a := range attempts {
		if a.Status == http.StatusForbidden || a.Status == http.StatusTooManyRequests || reBlocked.MatchString(a.Error) {
			return Analysis{Reason: models.ReasonBlocked, Message: MessageBlocked}
		}
	}
	for _, a := range attempts {
		if a.Status == http.StatusServiceUnavailable || reUnreachable.MatchString(a.Error) {
			return Analysis{Reason: models.ReasonUnreachable, Message: MessageUnreachable}
		}
	}
	return Analysis{Reason: models.ReasonUnsupported, Message: MessageUnsupported}
}

// ExecutionError is returned by Execute when no strategy recognised the store.
type ExecutionError struct {
	Reason   models.FailureReason
	Message  string
	Attempts []models.AttemptDiagnostic
}

func (e *ExecutionError) Error() string {
	return e.Message
}
