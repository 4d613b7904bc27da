package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"genmark/internal/audit"
	"genmark/internal/domain"
	"genmark/internal/ledger"
	dErrors "genmark/pkg/domain-errors"
)

// MinFlagDescriptionLen is the shortest accepted misuse description, after
// trimming whitespace.
const MinFlagDescriptionLen = 10

// FlagMisuse files one immutable misuse annotation against a registered
// fingerprint. Flag writes are never retried: appends are not idempotent and
// an ambiguous timeout must not risk a duplicate annotation.
func (s *Service) FlagMisuse(ctx context.Context, req FlagMisuseRequest) (FlagMisuseResult, error) {
	desc := strings.TrimSpace(req.Description)
	if len(desc) < MinFlagDescriptionLen {
		return FlagMisuseResult{}, dErrors.Newf(dErrors.CodeValidation,
			"description must be at least %d characters", MinFlagDescriptionLen)
	}

	// Existence check is a free read; skipping it would burn the flag payment
	// on a ledger rejection.
	rec, err := s.readLedger(ctx, req.Fingerprint)
	if errors.Is(err, ledger.ErrNotFound) {
		return FlagMisuseResult{}, dErrors.New(dErrors.CodeNotFound, "content is not registered")
	}
	if err != nil {
		return FlagMisuseResult{}, s.ledgerError(err, "flag target lookup failed")
	}

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerCallTimeout)
	res, err := s.ledger.AppendFlag(cctx, ledger.FlagRequest{
		Fingerprint: req.Fingerprint,
		Description: desc,
		Payment:     ledger.MinFlagPayment,
	})
	cancel()
	s.metrics.LedgerCall("append_flag", start)

	switch {
	case err == nil:
	case errors.Is(err, ledger.ErrRejected):
		return FlagMisuseResult{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "ledger rejected the flag")
	case errors.Is(err, ledger.ErrTimeout):
		return FlagMisuseResult{}, dErrors.Wrap(err, dErrors.CodeTimeout, "flag write did not confirm")
	default:
		return FlagMisuseResult{}, s.ledgerError(err, "flag write failed")
	}

	updated, rerr := s.readLedger(ctx, req.Fingerprint)
	if rerr != nil {
		// The flag committed; fall back to the pre-flag record with the count
		// bumped locally.
		updated = rec
		updated.MisuseCount = res.Index + 1
	}
	if merr := s.mirror.Put(ctx, updated); merr != nil {
		s.logger.WarnContext(ctx, "mirror refresh failed", "error", merr)
	}

	flag := domain.FlagRecord{
		Fingerprint: req.Fingerprint,
		Index:       res.Index,
		Description: desc,
		FiledAt:     time.Now().UTC(),
	}

	s.metrics.Flag()
	s.record(ctx, audit.Event{
		Action:      audit.ActionMisuseFlagged,
		Fingerprint: req.Fingerprint.String(),
		Actor:       req.ReporterID,
		Detail:      desc,
	})
	if s.notifier != nil {
		if nerr := s.notifier.MisuseFlagged(ctx, updated, flag); nerr != nil {
			s.logger.WarnContext(ctx, "misuse notification failed", "error", nerr)
		}
	}

	s.logger.InfoContext(ctx, "misuse flagged",
		"fingerprint", req.Fingerprint.String(),
		"flag_index", res.Index,
		"misuse_count", updated.MisuseCount,
	)

	return FlagMisuseResult{Flag: flag, Record: updated, Receipt: res.Receipt}, nil
}

// GetFlag returns the description stored at (fingerprint, index).
func (s *Service) GetFlag(ctx context.Context, fp domain.Fingerprint, index uint64) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerCallTimeout)
	defer cancel()

	start := time.Now()
	desc, err := s.ledger.ReadFlag(cctx, fp, index)
	s.metrics.LedgerCall("read_flag", start)

	if errors.Is(err, ledger.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotFound, "no flag at that index")
	}
	if err != nil {
		return "", s.ledgerError(err, "flag lookup failed")
	}
	return desc, nil
}
