// Package ledger defines the client interface to the external append-only,
// key-addressed store that owns all content records. Implementations are
// injected; callers never reach the ledger through ambient globals.
package ledger

import (
	"context"
	"errors"

	"genmark/internal/domain"
)

var (
	// ErrNotFound means no record (or flag) exists at the requested key.
	ErrNotFound = errors.New("ledger: record not found")

	// ErrDuplicate means the ledger rejected a write because the fingerprint
	// already has a record. This is a normal outcome, not a fault: the
	// existing record wins and callers re-read it.
	ErrDuplicate = errors.New("ledger: fingerprint already registered")

	// ErrTimeout means the call did not complete in time. The write may
	// still have committed server-side; callers must re-check existence
	// before retrying.
	ErrTimeout = errors.New("ledger: call timed out")

	// ErrRejected means the ledger refused the call for a terminal reason
	// (insufficient payment, malformed fields). Retrying will not help.
	ErrRejected = errors.New("ledger: call rejected")
)

// Write operations carry a resource cost: the ledger charges for the storage
// footprint of what it keeps. Calls below the minimum are rejected.
const (
	// MinRegisterPayment covers record box storage plus minting the
	// ownership credential (microunits).
	MinRegisterPayment uint64 = 100_000

	// MinFlagPayment covers one flag box (microunits).
	MinFlagPayment uint64 = 50_000
)

// WriteRequest assembles the fields of a new content record. CreatedAt and
// the ownership token are assigned by the ledger, never by the client.
type WriteRequest struct {
	Fingerprint   domain.Fingerprint
	CreatorID     string
	ContributorID string
	Platform      string
	Parent        *domain.Fingerprint
	Payment       uint64
}

// Receipt is the proof of a committed write.
type Receipt struct {
	TxID           string
	ConfirmedRound uint64
}

// WriteResult is the committed record plus its receipt.
type WriteResult struct {
	Record  domain.ContentRecord
	Receipt Receipt
}

// FlagRequest appends one misuse annotation to an existing record.
type FlagRequest struct {
	Fingerprint domain.Fingerprint
	Description string
	Payment     uint64
}

// FlagResult carries the ledger-assigned flag index and the write receipt.
type FlagResult struct {
	Index   uint64
	Receipt Receipt
}

// Client is the external ledger collaborator. All methods are blocking
// network calls with seconds-scale latency; callers bound them with a
// context deadline. Reads are free; writes require the minimum payment.
type Client interface {
	// Write creates the record for a fingerprint. Fails with ErrDuplicate
	// if the fingerprint is already registered, ErrRejected on payment or
	// field problems, ErrTimeout when confirmation was not observed.
	Write(ctx context.Context, req WriteRequest) (WriteResult, error)

	// Read returns the record at a fingerprint, or ErrNotFound.
	Read(ctx context.Context, fp domain.Fingerprint) (domain.ContentRecord, error)

	// AppendFlag stores an immutable misuse annotation. The ledger assigns
	// the index from the record's current misuse count and increments that
	// count atomically with the append.
	AppendFlag(ctx context.Context, req FlagRequest) (FlagResult, error)

	// ReadFlag returns the description at (fingerprint, index), or
	// ErrNotFound when the index is out of range.
	ReadFlag(ctx context.Context, fp domain.Fingerprint, index uint64) (string, error)
}
