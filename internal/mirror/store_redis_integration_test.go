//go:build integration

package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"genmark/internal/domain"
	"genmark/pkg/testutil/containers"
)

type RedisMirrorSuite struct {
	suite.Suite
	ctx    context.Context
	redis  *containers.RedisContainer
	mirror *Redis
}

func TestRedisMirrorSuite(t *testing.T) {
	suite.Run(t, new(RedisMirrorSuite))
}

func (s *RedisMirrorSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisMirrorSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
	s.mirror = NewRedis(s.redis.Client, time.Minute)
}

func (s *RedisMirrorSuite) record(fp uint64) domain.ContentRecord {
	parent := domain.Fingerprint(0x1)
	return domain.ContentRecord{
		Fingerprint:    domain.Fingerprint(fp),
		CreatorID:      "alice@example.com",
		ContributorID:  "bob@example.com",
		Platform:       "GenMark",
		CreatedAt:      time.Unix(1_700_000_000, 0).UTC(),
		OwnershipToken: 7421,
		MisuseCount:    2,
		Parent:         &parent,
	}
}

func (s *RedisMirrorSuite) TestRoundTrip() {
	rec := s.record(0xabc)
	s.Require().NoError(s.mirror.Put(s.ctx, rec))

	got, err := s.mirror.Get(s.ctx, rec.Fingerprint)
	s.Require().NoError(err)
	s.Equal(rec, got)
}

func (s *RedisMirrorSuite) TestMiss() {
	_, err := s.mirror.Get(s.ctx, domain.Fingerprint(0xabc))
	s.ErrorIs(err, ErrMiss)
}

func (s *RedisMirrorSuite) TestDelete() {
	rec := s.record(0xabc)
	s.Require().NoError(s.mirror.Put(s.ctx, rec))
	s.Require().NoError(s.mirror.Delete(s.ctx, rec.Fingerprint))

	_, err := s.mirror.Get(s.ctx, rec.Fingerprint)
	s.ErrorIs(err, ErrMiss)
}

func (s *RedisMirrorSuite) TestCorruptEntryReadsAsMiss() {
	rec := s.record(0xabc)
	key := mirrorKeyPrefix + rec.Fingerprint.String()
	s.Require().NoError(s.redis.Client.Set(s.ctx, key, "not json", time.Minute).Err())

	_, err := s.mirror.Get(s.ctx, rec.Fingerprint)
	s.ErrorIs(err, ErrMiss)
}

func (s *RedisMirrorSuite) TestFingerprintsScansKeyspace() {
	for _, fp := range []uint64{0x1, 0x2, 0x3} {
		rec := s.record(fp)
		rec.Parent = nil
		s.Require().NoError(s.mirror.Put(s.ctx, rec))
	}
	// Unrelated keys must not leak into the scan.
	s.Require().NoError(s.redis.Client.Set(s.ctx, "other:key", "x", time.Minute).Err())

	fps, err := s.mirror.Fingerprints(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]domain.Fingerprint{0x1, 0x2, 0x3}, fps)
}

func (s *RedisMirrorSuite) TestEntriesExpire() {
	short := NewRedis(s.redis.Client, 50*time.Millisecond)
	rec := s.record(0xabc)
	s.Require().NoError(short.Put(s.ctx, rec))

	s.Require().Eventually(func() bool {
		_, err := short.Get(s.ctx, rec.Fingerprint)
		return err == ErrMiss
	}, 2*time.Second, 25*time.Millisecond)
}
