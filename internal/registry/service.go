// Package registry orchestrates fingerprint registration against the external
// ledger. The ledger owns all records; this package adds duplicate policy,
// parent resolution, timeout recovery, and the advisory mirror on top of the
// ledger's primitives.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"genmark/internal/audit"
	"genmark/internal/domain"
	"genmark/internal/fingerprint"
	"genmark/internal/ledger"
	"genmark/internal/mirror"
	"genmark/internal/notify"
	"genmark/internal/platform/config"
	dErrors "genmark/pkg/domain-errors"
)

// DefaultPlatform names registrations that do not declare a source platform.
const DefaultPlatform = "GenMark"

// similarLimit caps the advisory matches attached to a registration result.
const similarLimit = 5

// ErrCorruptChain is returned when a derivation chain walk detects a cycle or
// exceeds the hop bound. It indicates ledger-side data corruption.
var ErrCorruptChain = dErrors.New(dErrors.CodeInternal, "corrupt derivation chain")

// Recorder receives audit events. audit.Trail satisfies it.
type Recorder interface {
	Record(ctx context.Context, ev audit.Event)
}

// Service is the registration orchestrator.
type Service struct {
	ledger     ledger.Client
	mirror     mirror.Mirror
	classifier *fingerprint.Classifier
	cfg        config.RegistryConfig

	logger   *slog.Logger
	metrics  *Metrics
	recorder Recorder
	notifier notify.Notifier

	group singleflight.Group
}

// Option configures the service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRecorder attaches the audit trail.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithNotifier attaches creator notifications.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService wires the orchestrator. The ledger client and mirror are
// required; everything else is optional.
func NewService(led ledger.Client, mir mirror.Mirror, cfg config.RegistryConfig, opts ...Option) *Service {
	s := &Service{
		ledger:     led,
		mirror:     mir,
		classifier: fingerprint.NewClassifier(cfg.ReencodeThreshold, cfg.EditThreshold),
		cfg:        cfg,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register writes a new content record, or reports the existing one. A
// fingerprint that is already registered is a success, not an error: first
// registration wins and the established record is returned unchanged.
//
// Concurrent registrations of the same fingerprint are collapsed in-process
// so the ledger sees at most one paid write; all but one caller receive the
// winner's record marked AlreadyRegistered.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if err := validateRegister(req); err != nil {
		return RegisterResult{}, err
	}
	if req.Platform == "" {
		req.Platform = DefaultPlatform
	}

	type flight struct {
		res   RegisterResult
		owner *struct{}
	}
	owner := new(struct{})

	v, err, _ := s.group.Do(req.Fingerprint.String(), func() (interface{}, error) {
		res, err := s.register(ctx, req)
		if err != nil {
			return nil, err
		}
		return flight{res: res, owner: owner}, nil
	})
	if err != nil {
		return RegisterResult{}, err
	}

	f := v.(flight)
	res := f.res
	if f.owner != owner && !res.AlreadyRegistered {
		// Collapsed caller: the record exists now, but this request did not
		// create it.
		res.AlreadyRegistered = true
	}
	if res.AlreadyRegistered && req.Parent != nil && res.Record.Parent == nil {
		// A claimed derivative that hashes onto an established original.
		res.PhashCollision = true
		s.logger.WarnContext(ctx, "derivative claim collides with established original",
			"fingerprint", req.Fingerprint.String(),
			"parent", req.Parent.String(),
		)
	}
	return res, nil
}

func (s *Service) register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if rec, ok := s.lookup(ctx, req.Fingerprint); ok {
		s.metrics.Registration("already_registered")
		s.record(ctx, audit.Event{
			Action:      audit.ActionDuplicateDetected,
			Fingerprint: req.Fingerprint.String(),
			Actor:       req.ContributorID,
			Platform:    req.Platform,
		})
		res := RegisterResult{Record: rec, AlreadyRegistered: true, ParentResolved: true}
		s.attachChain(ctx, &res)
		return res, nil
	}

	creator := req.CreatorID
	parent := req.Parent
	parentResolved := true
	if req.Parent != nil {
		parentRec, err := s.readLedger(ctx, *req.Parent)
		switch {
		case err == nil:
			// Derivatives keep the original author; only the contributor
			// changes along the chain.
			creator = parentRec.CreatorID
		case errors.Is(err, ledger.ErrNotFound):
			s.logger.WarnContext(ctx, "parent fingerprint not registered, recording as original",
				"fingerprint", req.Fingerprint.String(),
				"parent", req.Parent.String(),
			)
			parent = nil
			parentResolved = false
		default:
			return RegisterResult{}, s.ledgerError(err, "parent lookup failed")
		}
	}

	similar, err := s.FindSimilar(ctx, req.Fingerprint, similarLimit)
	if err != nil {
		// The scan is advisory; a mirror outage must not block registration.
		s.logger.WarnContext(ctx, "similarity scan skipped", "error", err)
		similar = nil
	}

	wreq := ledger.WriteRequest{
		Fingerprint:   req.Fingerprint,
		CreatorID:     creator,
		ContributorID: req.ContributorID,
		Platform:      req.Platform,
		Parent:        parent,
		Payment:       ledger.MinRegisterPayment,
	}

	res, err := s.writeWithRetry(ctx, wreq)
	if err != nil {
		return RegisterResult{}, err
	}
	res.ParentResolved = parentResolved
	res.Similar = similar
	s.attachChain(ctx, &res)

	if res.AlreadyRegistered {
		s.metrics.Registration("already_registered")
		s.record(ctx, audit.Event{
			Action:      audit.ActionDuplicateDetected,
			Fingerprint: req.Fingerprint.String(),
			Actor:       req.ContributorID,
			Platform:    req.Platform,
		})
		return res, nil
	}

	if err := s.mirror.Put(ctx, res.Record); err != nil {
		s.logger.WarnContext(ctx, "mirror refresh failed", "error", err)
	}

	s.metrics.Registration("registered")
	s.record(ctx, audit.Event{
		Action:      audit.ActionContentRegistered,
		Fingerprint: req.Fingerprint.String(),
		Actor:       req.ContributorID,
		Platform:    req.Platform,
	})
	if res.Record.Parent != nil {
		s.record(ctx, audit.Event{
			Action:      audit.ActionDerivativeLinked,
			Fingerprint: req.Fingerprint.String(),
			Actor:       req.ContributorID,
			Platform:    req.Platform,
			Detail:      res.Record.Parent.String(),
		})
	}

	s.logger.InfoContext(ctx, "content registered",
		"fingerprint", req.Fingerprint.String(),
		"creator", res.Record.CreatorID,
		"derivative", res.Record.Parent != nil,
		"tx_id", res.Receipt.TxID,
	)
	return res, nil
}

// writeWithRetry performs the paid ledger write. Only timeouts are retried,
// and every retry re-checks existence first so an ambiguous write that
// actually committed is never paid for twice.
func (s *Service) writeWithRetry(ctx context.Context, req ledger.WriteRequest) (RegisterResult, error) {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		cctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerCallTimeout)
		res, err := s.ledger.Write(cctx, req)
		cancel()
		s.metrics.LedgerCall("write", start)

		switch {
		case err == nil:
			return RegisterResult{Record: res.Record, Receipt: res.Receipt}, nil

		case errors.Is(err, ledger.ErrDuplicate):
			rec, rerr := s.readLedger(ctx, req.Fingerprint)
			if rerr != nil {
				return RegisterResult{}, s.ledgerError(rerr, "duplicate re-read failed")
			}
			return RegisterResult{Record: rec, AlreadyRegistered: true}, nil

		case errors.Is(err, ledger.ErrTimeout):
			if attempt >= s.cfg.RetryAttempts {
				s.metrics.Registration("timeout")
				return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeTimeout,
					"ledger write did not confirm")
			}
			s.metrics.LedgerRetry()
			s.logger.WarnContext(ctx, "ledger write timed out, retrying",
				"fingerprint", req.Fingerprint.String(),
				"attempt", attempt,
			)
			if serr := sleepCtx(ctx, s.cfg.RetryDelay); serr != nil {
				return RegisterResult{}, dErrors.Wrap(serr, dErrors.CodeTimeout,
					"ledger write did not confirm")
			}
			// The timed-out write may have landed; probing is free, a second
			// paid write is not.
			if rec, rerr := s.readLedger(ctx, req.Fingerprint); rerr == nil {
				return RegisterResult{Record: rec, AlreadyRegistered: true}, nil
			}

		case errors.Is(err, ledger.ErrRejected):
			s.metrics.Registration("rejected")
			return RegisterResult{}, dErrors.Wrap(err, dErrors.CodeBadRequest,
				"ledger rejected the registration")

		default:
			return RegisterResult{}, s.ledgerError(err, "ledger write failed")
		}
	}
}

// Verify reports whether a fingerprint is registered, with its derivation
// chain when it is. An unregistered fingerprint is a negative answer, not an
// error.
func (s *Service) Verify(ctx context.Context, fp domain.Fingerprint) (VerifyResult, error) {
	similar, serr := s.FindSimilar(ctx, fp, similarLimit)
	if serr != nil {
		s.logger.WarnContext(ctx, "similarity scan skipped", "error", serr)
	}

	rec, err := s.readLedger(ctx, fp)
	if errors.Is(err, ledger.ErrNotFound) {
		return VerifyResult{Registered: false, Similar: similar}, nil
	}
	if err != nil {
		return VerifyResult{}, s.ledgerError(err, "verify failed")
	}

	if merr := s.mirror.Put(ctx, rec); merr != nil {
		s.logger.WarnContext(ctx, "mirror refresh failed", "error", merr)
	}

	chain, err := s.Chain(ctx, fp)
	if err != nil {
		return VerifyResult{}, err
	}

	return VerifyResult{
		Registered: true,
		Record:     rec,
		Chain:      chain,
		FlagCount:  rec.MisuseCount,
		Similar:    similar,
	}, nil
}

// FindSimilar scans the local mirror for fingerprints within the edit
// threshold, nearest first. The scan is advisory: the mirror may be stale or
// partial, so absence of matches proves nothing.
func (s *Service) FindSimilar(ctx context.Context, fp domain.Fingerprint, limit int) ([]SimilarMatch, error) {
	fps, err := s.mirror.Fingerprints(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "mirror scan failed")
	}

	var matches []SimilarMatch
	for _, other := range fps {
		if other == fp {
			continue
		}
		m := s.classifier.Classify(fp, other)
		if m == fingerprint.MatchUnrelated {
			continue
		}
		matches = append(matches, SimilarMatch{
			Fingerprint: other,
			Distance:    fingerprint.Distance(fp, other),
			Match:       m,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// attachChain adds the derivation chain to a committed registration result.
// The record is already on the ledger at this point, so a chain failure is
// logged rather than turned into a registration error.
func (s *Service) attachChain(ctx context.Context, res *RegisterResult) {
	chain, err := s.Chain(ctx, res.Record.Fingerprint)
	if err != nil {
		s.logger.WarnContext(ctx, "chain build skipped",
			"fingerprint", res.Record.Fingerprint.String(),
			"error", err,
		)
		return
	}
	res.Chain = chain
}

// lookup answers "does a record exist" using the mirror as a hint and the
// ledger as the authority.
func (s *Service) lookup(ctx context.Context, fp domain.Fingerprint) (domain.ContentRecord, bool) {
	_, merr := s.mirror.Get(ctx, fp)
	s.metrics.MirrorLookup(merr == nil)

	rec, err := s.readLedger(ctx, fp)
	switch {
	case err == nil:
		if merr != nil {
			if perr := s.mirror.Put(ctx, rec); perr != nil {
				s.logger.WarnContext(ctx, "mirror refresh failed", "error", perr)
			}
		}
		return rec, true
	case errors.Is(err, ledger.ErrNotFound):
		if merr == nil {
			// Stale mirror entry for a record the ledger does not have.
			if derr := s.mirror.Delete(ctx, fp); derr != nil {
				s.logger.WarnContext(ctx, "mirror repair failed", "error", derr)
			}
		}
		return domain.ContentRecord{}, false
	default:
		// Ambiguous; the paid write path arbitrates via ErrDuplicate.
		return domain.ContentRecord{}, false
	}
}

func (s *Service) readLedger(ctx context.Context, fp domain.Fingerprint) (domain.ContentRecord, error) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerCallTimeout)
	defer cancel()
	rec, err := s.ledger.Read(cctx, fp)
	s.metrics.LedgerCall("read", start)
	return rec, err
}

func (s *Service) ledgerError(err error, msg string) error {
	switch {
	case errors.Is(err, ledger.ErrTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, ledger.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	}
}

func (s *Service) record(ctx context.Context, ev audit.Event) {
	if s.recorder != nil {
		s.recorder.Record(ctx, ev)
	}
}

func validateRegister(req RegisterRequest) error {
	if req.CreatorID == "" {
		return dErrors.New(dErrors.CodeValidation, "creator_id is required")
	}
	if req.ContributorID == "" {
		return dErrors.New(dErrors.CodeValidation, "contributor_id is required")
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
