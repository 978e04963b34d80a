package models

// FailureReason classifies why no strategy recognised a store.
type FailureReason string

const (
	ReasonBlocked     FailureReason = "blocked"
	ReasonUnreachable FailureReason = "unreachable"
	ReasonUnsupported FailureReason = "unsupported"

	// ReasonUnknown is reported for failures that were never classified,
	// such as an error in the middle of pagination.
	ReasonUnknown FailureReason = "unknown"
)

// AttemptDiagnostic records one strategy's failed probe.
type AttemptDiagnostic struct {
	Strategy string `json:"strategy"`
	Status   int    `json:"status,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Error    string `json:"error,omitempty"`
}
