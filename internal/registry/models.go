package registry

import (
	"genmark/internal/domain"
	"genmark/internal/fingerprint"
	"genmark/internal/ledger"
)

// RegisterRequest registers one fingerprint. The fingerprint is already
// computed; handlers own decoding uploads into it.
type RegisterRequest struct {
	Fingerprint   domain.Fingerprint
	CreatorID     string
	ContributorID string
	Platform      string
	Parent        *domain.Fingerprint
}

// RegisterResult is the outcome of a registration. AlreadyRegistered marks
// the success variant where the record predates this request; Record then
// describes the existing registration, not one owned by the caller.
type RegisterResult struct {
	Record  domain.ContentRecord
	Receipt ledger.Receipt

	AlreadyRegistered bool

	// PhashCollision marks an AlreadyRegistered result where the request
	// claimed a parent but the established record is an original: the caller
	// asked to register a derivative of content that already exists verbatim.
	PhashCollision bool

	// ParentResolved is false when a requested parent had no record and the
	// content was registered as a fresh original instead.
	ParentResolved bool

	// Similar lists advisory near-duplicates found in the local mirror. A
	// non-empty list never blocks registration.
	Similar []SimilarMatch

	// Chain is the derivation chain ending at this record, oldest first.
	Chain []domain.ChainStep
}

// VerifyResult reports the ledger state for one fingerprint. Similar is the
// advisory mirror scan and is populated whether or not the fingerprint is
// registered; an unregistered image may still resemble known content.
type VerifyResult struct {
	Registered bool
	Record     domain.ContentRecord
	Chain      []domain.ChainStep
	FlagCount  uint64
	Similar    []SimilarMatch
}

// SimilarMatch is one advisory hit from a mirror similarity scan.
type SimilarMatch struct {
	Fingerprint domain.Fingerprint
	Distance    int
	Match       fingerprint.Match
}

// FlagMisuseRequest files one misuse annotation.
type FlagMisuseRequest struct {
	Fingerprint domain.Fingerprint
	Description string
	ReporterID  string
}

// FlagMisuseResult is the committed flag plus the updated record.
type FlagMisuseResult struct {
	Flag    domain.FlagRecord
	Record  domain.ContentRecord
	Receipt ledger.Receipt
}
