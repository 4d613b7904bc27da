package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"genmark/internal/audit"
	"genmark/internal/domain"
	ledgermem "genmark/internal/ledger/memory"
	"genmark/internal/mirror"
	dErrors "genmark/pkg/domain-errors"
)

// captureNotifier records delivered notifications for assertions.
type captureNotifier struct {
	mu    sync.Mutex
	flags []domain.FlagRecord
}

func (n *captureNotifier) MisuseFlagged(_ context.Context, _ domain.ContentRecord, flag domain.FlagRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.flags = append(n.flags, flag)
	return nil
}

type FlagSuite struct {
	suite.Suite
	ctx      context.Context
	led      *ledgermem.Ledger
	mir      *mirror.Memory
	events   *audit.MemoryStore
	trail    *audit.Trail
	notifier *captureNotifier
	svc      *Service
}

func TestFlagSuite(t *testing.T) {
	suite.Run(t, new(FlagSuite))
}

func (s *FlagSuite) SetupTest() {
	s.ctx = context.Background()
	s.led = ledgermem.New()
	s.mir = mirror.NewMemory()
	s.events = audit.NewMemoryStore()
	s.trail = audit.New(s.events, slog.New(slog.DiscardHandler))
	s.notifier = &captureNotifier{}
	s.svc = NewService(s.led, s.mir, testConfig(),
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRecorder(s.trail),
		WithNotifier(s.notifier),
	)

	_, err := s.svc.Register(s.ctx, RegisterRequest{
		Fingerprint:   domain.Fingerprint(0xabc),
		CreatorID:     "alice@example.com",
		ContributorID: "alice@example.com",
		Platform:      "GenMark",
	})
	s.Require().NoError(err)
}

func (s *FlagSuite) TearDownTest() {
	s.trail.Close()
}

func (s *FlagSuite) flagReq(desc string) FlagMisuseRequest {
	return FlagMisuseRequest{
		Fingerprint: domain.Fingerprint(0xabc),
		Description: desc,
		ReporterID:  "bob@example.com",
	}
}

func (s *FlagSuite) TestFlagMisuse() {
	res, err := s.svc.FlagMisuse(s.ctx, s.flagReq("unauthorized commercial reuse"))
	s.Require().NoError(err)

	s.Zero(res.Flag.Index)
	s.Equal("unauthorized commercial reuse", res.Flag.Description)
	s.Equal(uint64(1), res.Record.MisuseCount)
	s.NotEmpty(res.Receipt.TxID)

	cached, err := s.mir.Get(s.ctx, domain.Fingerprint(0xabc))
	s.Require().NoError(err)
	s.Equal(uint64(1), cached.MisuseCount, "flagging must refresh the mirror")

	s.Require().Len(s.notifier.flags, 1)
	s.Equal(res.Flag.Index, s.notifier.flags[0].Index)
}

func (s *FlagSuite) TestFlagIndicesAreGapless() {
	for want := uint64(0); want < 3; want++ {
		res, err := s.svc.FlagMisuse(s.ctx, s.flagReq("reposted without attribution"))
		s.Require().NoError(err)
		s.Equal(want, res.Flag.Index)
		s.Equal(want+1, res.Record.MisuseCount)
	}
}

func (s *FlagSuite) TestDescriptionTooShort() {
	_, err := s.svc.FlagMisuse(s.ctx, s.flagReq("too short"))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.FlagMisuse(s.ctx, s.flagReq("   padded out    "))
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "whitespace does not count toward the minimum")

	rec, rerr := s.led.Read(s.ctx, domain.Fingerprint(0xabc))
	s.Require().NoError(rerr)
	s.Zero(rec.MisuseCount, "rejected flags must not reach the ledger")
}

func (s *FlagSuite) TestDescriptionIsTrimmed() {
	res, err := s.svc.FlagMisuse(s.ctx, s.flagReq("  unauthorized reuse of artwork  "))
	s.Require().NoError(err)
	s.Equal("unauthorized reuse of artwork", res.Flag.Description)
}

func (s *FlagSuite) TestUnregisteredTargetCostsNothing() {
	_, err := s.svc.FlagMisuse(s.ctx, FlagMisuseRequest{
		Fingerprint: domain.Fingerprint(0xdead),
		Description: strings.Repeat("misuse ", 3),
		ReporterID:  "bob@example.com",
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *FlagSuite) TestFlagRecordsAuditEvent() {
	_, err := s.svc.FlagMisuse(s.ctx, s.flagReq("unauthorized commercial reuse"))
	s.Require().NoError(err)
	s.trail.Close()

	events, err := s.events.ListByFingerprint(s.ctx, domain.Fingerprint(0xabc).String(), 10)
	s.Require().NoError(err)

	var flagged *audit.Event
	for i := range events {
		if events[i].Action == audit.ActionMisuseFlagged {
			flagged = &events[i]
		}
	}
	s.Require().NotNil(flagged)
	s.Equal("bob@example.com", flagged.Actor)
	s.Equal("unauthorized commercial reuse", flagged.Detail)
}

func (s *FlagSuite) TestGetFlag() {
	_, err := s.svc.FlagMisuse(s.ctx, s.flagReq("unauthorized commercial reuse"))
	s.Require().NoError(err)

	desc, err := s.svc.GetFlag(s.ctx, domain.Fingerprint(0xabc), 0)
	s.Require().NoError(err)
	s.Equal("unauthorized commercial reuse", desc)

	_, err = s.svc.GetFlag(s.ctx, domain.Fingerprint(0xabc), 1)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
