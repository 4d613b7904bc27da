//go:build integration

package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"genmark/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx   context.Context
	store *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	pg := containers.NewPostgresContainer(s.T())

	store, err := NewPostgresStore(s.ctx, pg.DSN)
	s.Require().NoError(err)
	s.Require().NoError(store.Migrate(s.ctx))
	s.store = store
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *PostgresStoreSuite) event(fp string, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Action:      ActionContentRegistered,
		Fingerprint: fp,
		Actor:       "alice@example.com",
		Platform:    "GenMark",
		OccurredAt:  at,
	}
}

func (s *PostgresStoreSuite) TestInsertAndList() {
	base := time.Now().UTC().Truncate(time.Microsecond)
	fp := uuid.NewString()[:16]

	for i := 0; i < 3; i++ {
		ev := s.event(fp, base.Add(time.Duration(i)*time.Second))
		ev.Detail = string(rune('a' + i))
		s.Require().NoError(s.store.Insert(s.ctx, ev))
	}

	events, err := s.store.ListByFingerprint(s.ctx, fp, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.Equal("c", events[0].Detail, "newest first")
	s.Equal("a", events[2].Detail)
	s.Equal(ActionContentRegistered, events[0].Action)
}

func (s *PostgresStoreSuite) TestListHonorsLimit() {
	base := time.Now().UTC()
	fp := uuid.NewString()[:16]
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Insert(s.ctx, s.event(fp, base.Add(time.Duration(i)*time.Second))))
	}

	events, err := s.store.ListByFingerprint(s.ctx, fp, 2)
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *PostgresStoreSuite) TestListFiltersByFingerprint() {
	fp := uuid.NewString()[:16]
	other := uuid.NewString()[:16]
	s.Require().NoError(s.store.Insert(s.ctx, s.event(fp, time.Now().UTC())))
	s.Require().NoError(s.store.Insert(s.ctx, s.event(other, time.Now().UTC())))

	events, err := s.store.ListByFingerprint(s.ctx, fp, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(fp, events[0].Fingerprint)
}
