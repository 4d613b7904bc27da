package domain

import "time"

// ContentRecord is the authoritative entry for one fingerprint. The record is
// owned by the ledger: CreatedAt is assigned server-side at write time so
// clients cannot backdate a registration, and MisuseCount is the only field
// that ever changes after creation.
type ContentRecord struct {
	Fingerprint    Fingerprint
	CreatorID      string // original author, propagated unchanged through the derivation chain
	ContributorID  string // party who produced this specific fingerprint
	Platform       string
	CreatedAt      time.Time
	OwnershipToken uint64 // non-transferable credential minted alongside the record
	MisuseCount    uint64
	Parent         *Fingerprint // set only for derivatives
}

// IsOriginal reports whether the record has no parent link.
func (r ContentRecord) IsOriginal() bool { return r.Parent == nil }

// FlagRecord is one immutable misuse annotation. Indices are gapless per
// fingerprint, start at 0, and are assigned by the ledger.
type FlagRecord struct {
	Fingerprint Fingerprint
	Index       uint64
	Description string
	FiledAt     time.Time
}

// ChainStep is one link of a derivation chain, ordered oldest first.
type ChainStep struct {
	Record      ContentRecord
	IsOriginal  bool
	Contributor string
}
