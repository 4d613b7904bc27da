package audit

import "time"

// Actions recorded by the registry. The trail is append-only; every ledger
// mutation and every duplicate detection leaves exactly one event.
const (
	ActionContentRegistered = "content_registered"
	ActionDuplicateDetected = "duplicate_detected"
	ActionDerivativeLinked  = "derivative_linked"
	ActionMisuseFlagged     = "misuse_flagged"
)

// Event is one audit trail entry.
type Event struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Fingerprint string    `json:"fingerprint"`
	Actor       string    `json:"actor"`
	Platform    string    `json:"platform,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
