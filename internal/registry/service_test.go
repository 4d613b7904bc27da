package registry

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"genmark/internal/audit"
	"genmark/internal/domain"
	"genmark/internal/fingerprint"
	"genmark/internal/ledger"
	ledgermem "genmark/internal/ledger/memory"
	"genmark/internal/mirror"
	"genmark/internal/platform/config"
	dErrors "genmark/pkg/domain-errors"
)

func testConfig() config.RegistryConfig {
	return config.RegistryConfig{
		RetryAttempts:     3,
		RetryDelay:        0,
		LedgerCallTimeout: time.Second,
		ReencodeThreshold: 4,
		EditThreshold:     10,
		MirrorTTL:         time.Minute,
	}
}

type ServiceSuite struct {
	suite.Suite
	ctx    context.Context
	led    *ledgermem.Ledger
	mir    *mirror.Memory
	events *audit.MemoryStore
	trail  *audit.Trail
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.led = ledgermem.New()
	s.mir = mirror.NewMemory()
	s.events = audit.NewMemoryStore()
	s.trail = audit.New(s.events, slog.New(slog.DiscardHandler))
	s.svc = NewService(s.led, s.mir, testConfig(),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRecorder(s.trail),
	)
}

func (s *ServiceSuite) TearDownTest() {
	s.trail.Close()
}

// auditActions drains the trail and returns recorded actions in order.
func (s *ServiceSuite) auditActions() []string {
	s.trail.Close()
	var actions []string
	for _, ev := range s.events.All() {
		actions = append(actions, ev.Action)
	}
	return actions
}

func (s *ServiceSuite) registerReq(fp uint64) RegisterRequest {
	return RegisterRequest{
		Fingerprint:   domain.Fingerprint(fp),
		CreatorID:     "alice@example.com",
		ContributorID: "alice@example.com",
		Platform:      "GenMark",
	}
}

func (s *ServiceSuite) TestRegisterNewContent() {
	res, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.Require().NoError(err)

	s.False(res.AlreadyRegistered)
	s.True(res.ParentResolved)
	s.Equal("alice@example.com", res.Record.CreatorID)
	s.NotZero(res.Record.OwnershipToken)
	s.NotEmpty(res.Receipt.TxID)
	s.False(res.Record.CreatedAt.IsZero())

	cached, err := s.mir.Get(s.ctx, domain.Fingerprint(0xabc))
	s.Require().NoError(err, "successful registration must refresh the mirror")
	s.Equal(res.Record, cached)

	s.Equal([]string{audit.ActionContentRegistered}, s.auditActions())
}

func (s *ServiceSuite) TestRegisterValidatesIdentity() {
	req := s.registerReq(0xabc)
	req.CreatorID = ""
	_, err := s.svc.Register(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	req = s.registerReq(0xabc)
	req.ContributorID = ""
	_, err = s.svc.Register(s.ctx, req)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	s.Zero(s.led.WriteCount())
}

func (s *ServiceSuite) TestRegisterDefaultsPlatform() {
	req := s.registerReq(0xabc)
	req.Platform = ""
	res, err := s.svc.Register(s.ctx, req)
	s.Require().NoError(err)
	s.Equal(DefaultPlatform, res.Record.Platform)
}

func (s *ServiceSuite) TestDuplicateIsSuccessWithoutExtraWrite() {
	first, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.Require().NoError(err)

	// Bob submits the exact same image.
	req := s.registerReq(0xabc)
	req.CreatorID = "bob@example.com"
	req.ContributorID = "bob@example.com"

	second, err := s.svc.Register(s.ctx, req)
	s.Require().NoError(err)

	s.True(second.AlreadyRegistered)
	s.False(second.PhashCollision, "a plain duplicate claims no parentage")
	s.Equal(first.Record.CreatorID, second.Record.CreatorID, "the established record wins")
	s.Equal(first.Record.OwnershipToken, second.Record.OwnershipToken)
	s.Equal(1, s.led.WriteCount(), "a duplicate must not reach the paid write path")

	s.Equal([]string{audit.ActionContentRegistered, audit.ActionDuplicateDetected}, s.auditActions())
}

func (s *ServiceSuite) TestDerivativeClaimOnEstablishedOriginalIsACollision() {
	_, err := s.svc.Register(s.ctx, s.registerReq(0xaaa))
	s.Require().NoError(err)

	// Bob submits the exact bytes of Alice's original while claiming it
	// derives from other registered content.
	_, err = s.svc.Register(s.ctx, s.registerReq(0xbbb))
	s.Require().NoError(err)

	parent := domain.Fingerprint(0xbbb)
	req := s.registerReq(0xaaa)
	req.ContributorID = "bob@example.com"
	req.Parent = &parent

	res, err := s.svc.Register(s.ctx, req)
	s.Require().NoError(err)

	s.True(res.AlreadyRegistered)
	s.True(res.PhashCollision, "a derivative claim over an established original must be surfaced")
	s.Equal("alice@example.com", res.Record.CreatorID)
	s.Equal(2, s.led.WriteCount(), "the collision must not reach the paid write path")
}

func (s *ServiceSuite) TestDuplicateOfDerivativeIsNotACollision() {
	_, err := s.svc.Register(s.ctx, s.registerReq(0xaaa))
	s.Require().NoError(err)

	parent := domain.Fingerprint(0xaaa)
	req := s.registerReq(0xbbb)
	req.Parent = &parent
	_, err = s.svc.Register(s.ctx, req)
	s.Require().NoError(err)

	// Re-submitting the derivative with the same claim matches the ledger
	// record exactly; nothing collided.
	res, err := s.svc.Register(s.ctx, req)
	s.Require().NoError(err)

	s.True(res.AlreadyRegistered)
	s.False(res.PhashCollision)
}

func (s *ServiceSuite) TestDuplicateRaceSettledByLedger() {
	// The record exists on the ledger but not in the mirror, and the mirror
	// also has no stale entry: the free read settles it before any payment.
	_, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.Require().NoError(err)
	s.Require().NoError(s.mir.Delete(s.ctx, domain.Fingerprint(0xabc)))

	res, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.Require().NoError(err)
	s.True(res.AlreadyRegistered)
	s.Equal(1, s.led.WriteCount())
}

func (s *ServiceSuite) TestStaleMirrorEntryIsRepaired() {
	ghost := domain.ContentRecord{
		Fingerprint: domain.Fingerprint(0xabc),
		CreatorID:   "ghost@example.com",
	}
	s.Require().NoError(s.mir.Put(s.ctx, ghost))

	res, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.Require().NoError(err)
	s.False(res.AlreadyRegistered, "a mirror-only entry must not fake a registration")

	cached, err := s.mir.Get(s.ctx, domain.Fingerprint(0xabc))
	s.Require().NoError(err)
	s.Equal("alice@example.com", cached.CreatorID)
}

func (s *ServiceSuite) TestDerivativePropagatesCreator() {
	orig, err := s.svc.Register(s.ctx, s.registerReq(0xaaa))
	s.Require().NoError(err)

	parent := domain.Fingerprint(0xaaa)
	req := RegisterRequest{
		Fingerprint:   domain.Fingerprint(0xbbb),
		CreatorID:     "bob@example.com",
		ContributorID: "bob@example.com",
		Platform:      "GenMark",
		Parent:        &parent,
	}

	res, err := s.svc.Register(s.ctx, req)
	s.Require().NoError(err)

	s.True(res.ParentResolved)
	s.Require().NotNil(res.Record.Parent)
	s.Equal(parent, *res.Record.Parent)
	s.Equal(orig.Record.CreatorID, res.Record.CreatorID, "creator follows the chain root")
	s.Equal("bob@example.com", res.Record.ContributorID)

	s.Require().Len(res.Chain, 2)
	s.True(res.Chain[0].IsOriginal)
	s.Equal("alice@example.com", res.Chain[0].Contributor)
	s.Equal("bob@example.com", res.Chain[1].Contributor)

	s.Contains(s.auditActions(), audit.ActionDerivativeLinked)
}

func (s *ServiceSuite) TestUnresolvableParentFallsBackToOriginal() {
	parent := domain.Fingerprint(0xdead)
	req := s.registerReq(0xbbb)
	req.Parent = &parent

	res, err := s.svc.Register(s.ctx, req)
	s.Require().NoError(err)

	s.False(res.ParentResolved)
	s.Nil(res.Record.Parent)
	s.Equal("alice@example.com", res.Record.CreatorID)
}

func (s *ServiceSuite) TestTimeoutAfterCommitIsNotPaidTwice() {
	s.led.FailNextWrite(ledger.ErrTimeout, true)

	res, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.Require().NoError(err)

	s.True(res.AlreadyRegistered, "the ambiguous write landed; the retry must detect it")
	s.Equal(1, s.led.WriteCount(), "exactly one paid write despite the timeout")
}

func (s *ServiceSuite) TestTimeoutWithoutCommitIsRetried() {
	s.led.FailNextWrite(ledger.ErrTimeout, false)

	res, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.Require().NoError(err)

	s.False(res.AlreadyRegistered)
	s.Equal(2, s.led.WriteCount())
}

func (s *ServiceSuite) TestExhaustedTimeoutsSurfaceAsTimeout() {
	for i := 0; i < 3; i++ {
		s.led.FailNextWrite(ledger.ErrTimeout, false)
	}

	_, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Equal(3, s.led.WriteCount())
}

func (s *ServiceSuite) TestLogicalRejectionIsNeverRetried() {
	s.led.FailNextWrite(ledger.ErrRejected, false)

	_, err := s.svc.Register(s.ctx, s.registerReq(0xabc))
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	s.Equal(1, s.led.WriteCount(), "rejections are terminal")
}

func (s *ServiceSuite) TestConcurrentRegistrationsCollapseToOneWrite() {
	const callers = 10

	var wg sync.WaitGroup
	results := make([]RegisterResult, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.svc.Register(s.ctx, s.registerReq(0xabc))
		}(i)
	}
	wg.Wait()

	owners := 0
	for i := 0; i < callers; i++ {
		s.Require().NoError(errs[i])
		s.Equal(results[0].Record.OwnershipToken, results[i].Record.OwnershipToken)
		if !results[i].AlreadyRegistered {
			owners++
		}
	}
	s.Equal(1, s.led.WriteCount(), "concurrent duplicates must collapse to one paid write")
	s.LessOrEqual(owners, 1, "at most one caller owns the registration")
}

func (s *ServiceSuite) TestVerifyUnregistered() {
	res, err := s.svc.Verify(s.ctx, domain.Fingerprint(0xabc))
	s.Require().NoError(err)
	s.False(res.Registered)
}

func (s *ServiceSuite) TestVerifyRegisteredWithChain() {
	_, err := s.svc.Register(s.ctx, s.registerReq(0xaaa))
	s.Require().NoError(err)

	res, err := s.svc.Verify(s.ctx, domain.Fingerprint(0xaaa))
	s.Require().NoError(err)

	s.True(res.Registered)
	s.Equal("alice@example.com", res.Record.CreatorID)
	s.Require().Len(res.Chain, 1)
	s.True(res.Chain[0].IsOriginal)
	s.Zero(res.FlagCount)
}

func (s *ServiceSuite) TestVerifyUnregisteredReportsSimilar() {
	_, err := s.svc.Register(s.ctx, s.registerReq(0b0))
	s.Require().NoError(err)

	res, err := s.svc.Verify(s.ctx, domain.Fingerprint(0b1))
	s.Require().NoError(err)

	s.False(res.Registered)
	s.Require().Len(res.Similar, 1)
	s.Equal(1, res.Similar[0].Distance)
}

func (s *ServiceSuite) TestFindSimilarRanksByDistance() {
	base := domain.Fingerprint(0)
	for _, rec := range []domain.ContentRecord{
		{Fingerprint: domain.Fingerprint(0b111)},      // distance 3
		{Fingerprint: domain.Fingerprint(0b1)},        // distance 1
		{Fingerprint: domain.Fingerprint(0xffffffff)}, // distance 32, unrelated
	} {
		s.Require().NoError(s.mir.Put(s.ctx, rec))
	}

	matches, err := s.svc.FindSimilar(s.ctx, base, 10)
	s.Require().NoError(err)

	s.Require().Len(matches, 2)
	s.Equal(1, matches[0].Distance)
	s.Equal(3, matches[1].Distance)
	s.Equal(fingerprint.MatchReencoded, matches[0].Match)
	s.Equal(fingerprint.MatchReencoded, matches[1].Match)
}

func (s *ServiceSuite) TestFindSimilarHonorsReencodeThreshold() {
	cfg := testConfig()
	cfg.ReencodeThreshold = 1
	svc := NewService(s.led, s.mir, cfg, WithLogger(slog.New(slog.DiscardHandler)))

	s.Require().NoError(s.mir.Put(s.ctx, domain.ContentRecord{Fingerprint: domain.Fingerprint(0b111)}))

	matches, err := svc.FindSimilar(s.ctx, domain.Fingerprint(0), 10)
	s.Require().NoError(err)

	// Distance 3 exceeds the tightened re-encode bound but stays within the
	// edit bound.
	s.Require().Len(matches, 1)
	s.Equal(fingerprint.MatchNearDuplicate, matches[0].Match)
}

func (s *ServiceSuite) TestRegisterReportsAdvisorySimilar() {
	_, err := s.svc.Register(s.ctx, s.registerReq(0b0))
	s.Require().NoError(err)

	res, err := s.svc.Register(s.ctx, s.registerReq(0b11))
	s.Require().NoError(err)

	s.False(res.AlreadyRegistered, "near-duplicates never block registration")
	s.Require().Len(res.Similar, 1)
	s.Equal(2, res.Similar[0].Distance)
	s.Equal(2, s.led.WriteCount())
}
