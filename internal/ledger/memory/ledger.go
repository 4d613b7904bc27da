// Package memory provides an in-process ledger with the same observable
// behavior as the on-chain contract: key uniqueness, payment minimums, and
// the flag-count coupling. It backs unit tests and local development; the
// fault hooks let tests exercise the orchestrator's timeout handling.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"genmark/internal/domain"
	"genmark/internal/ledger"
)

// Ledger is a thread-safe in-memory ledger.Client.
type Ledger struct {
	mu      sync.Mutex
	records map[domain.Fingerprint]*domain.ContentRecord
	flags   map[domain.Fingerprint][]domain.FlagRecord

	nextToken  uint64
	writeCount int
	faults     []fault

	now func() time.Time
}

// fault is consumed by the next Write call. When commit is set the write
// lands before the error is returned, reproducing a confirmation timeout on
// a transaction that actually committed.
type fault struct {
	err    error
	commit bool
}

// Option configures the ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New constructs an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		records:   make(map[domain.Fingerprint]*domain.ContentRecord),
		flags:     make(map[domain.Fingerprint][]domain.FlagRecord),
		nextToken: 1000,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FailNextWrite queues an error for the next Write call. With commit set the
// record is stored before the error surfaces.
func (l *Ledger) FailNextWrite(err error, commit bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults = append(l.faults, fault{err: err, commit: commit})
}

// WriteCount reports how many Write calls reached the ledger, including
// rejected ones.
func (l *Ledger) WriteCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeCount
}

func (l *Ledger) Write(ctx context.Context, req ledger.WriteRequest) (ledger.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return ledger.WriteResult{}, fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeCount++

	if req.Payment < ledger.MinRegisterPayment {
		return ledger.WriteResult{}, fmt.Errorf("%w: payment %d below minimum %d",
			ledger.ErrRejected, req.Payment, ledger.MinRegisterPayment)
	}
	if _, exists := l.records[req.Fingerprint]; exists {
		return ledger.WriteResult{}, fmt.Errorf("%w: %s", ledger.ErrDuplicate, req.Fingerprint)
	}

	var pending *fault
	if len(l.faults) > 0 {
		pending = &l.faults[0]
		l.faults = l.faults[1:]
		if !pending.commit {
			return ledger.WriteResult{}, pending.err
		}
	}

	l.nextToken++
	rec := &domain.ContentRecord{
		Fingerprint:    req.Fingerprint,
		CreatorID:      req.CreatorID,
		ContributorID:  req.ContributorID,
		Platform:       req.Platform,
		CreatedAt:      l.now().UTC(),
		OwnershipToken: l.nextToken,
		Parent:         copyFingerprint(req.Parent),
	}
	l.records[req.Fingerprint] = rec

	if pending != nil {
		return ledger.WriteResult{}, pending.err
	}

	return ledger.WriteResult{
		Record:  *rec,
		Receipt: ledger.Receipt{TxID: fmt.Sprintf("memtx-%d", l.nextToken), ConfirmedRound: l.nextToken},
	}, nil
}

func (l *Ledger) Read(ctx context.Context, fp domain.Fingerprint) (domain.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.ContentRecord{}, fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[fp]
	if !ok {
		return domain.ContentRecord{}, ledger.ErrNotFound
	}
	out := *rec
	out.Parent = copyFingerprint(rec.Parent)
	return out, nil
}

func (l *Ledger) AppendFlag(ctx context.Context, req ledger.FlagRequest) (ledger.FlagResult, error) {
	if err := ctx.Err(); err != nil {
		return ledger.FlagResult{}, fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[req.Fingerprint]
	if !ok {
		return ledger.FlagResult{}, fmt.Errorf("%w: content not registered", ledger.ErrRejected)
	}
	if req.Payment < ledger.MinFlagPayment {
		return ledger.FlagResult{}, fmt.Errorf("%w: payment %d below minimum %d",
			ledger.ErrRejected, req.Payment, ledger.MinFlagPayment)
	}

	index := rec.MisuseCount
	l.flags[req.Fingerprint] = append(l.flags[req.Fingerprint], domain.FlagRecord{
		Fingerprint: req.Fingerprint,
		Index:       index,
		Description: req.Description,
		FiledAt:     l.now().UTC(),
	})
	// Coupled increment: the flag append and the count bump are one atomic
	// ledger transaction.
	rec.MisuseCount = index + 1

	return ledger.FlagResult{
		Index:   index,
		Receipt: ledger.Receipt{TxID: fmt.Sprintf("memflag-%s-%d", req.Fingerprint, index), ConfirmedRound: index + 1},
	}, nil
}

func (l *Ledger) ReadFlag(ctx context.Context, fp domain.Fingerprint, index uint64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrTimeout, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	flags := l.flags[fp]
	if index >= uint64(len(flags)) {
		return "", ledger.ErrNotFound
	}
	return flags[index].Description, nil
}

func copyFingerprint(fp *domain.Fingerprint) *domain.Fingerprint {
	if fp == nil {
		return nil
	}
	out := *fp
	return &out
}
