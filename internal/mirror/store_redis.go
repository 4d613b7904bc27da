package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"genmark/internal/domain"
)

// Redis key prefix for mirrored records.
const mirrorKeyPrefix = "mirror:fp:"

// Redis is a Redis-backed mirror shared by multiple process instances.
// Entries expire after a TTL so stale records age out even if invalidation
// is missed; the ledger remains the source of truth either way.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis constructs a Redis mirror. The client lifecycle is managed by the
// caller.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// cachedRecord is the JSON shape stored per fingerprint.
type cachedRecord struct {
	Fingerprint    string    `json:"fingerprint"`
	CreatorID      string    `json:"creator_id"`
	ContributorID  string    `json:"contributor_id"`
	Platform       string    `json:"platform"`
	CreatedAt      time.Time `json:"created_at"`
	OwnershipToken uint64    `json:"ownership_token"`
	MisuseCount    uint64    `json:"misuse_count"`
	Parent         string    `json:"parent,omitempty"`
}

func (r *Redis) Get(ctx context.Context, fp domain.Fingerprint) (domain.ContentRecord, error) {
	data, err := r.client.Get(ctx, mirrorKeyPrefix+fp.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ContentRecord{}, ErrMiss
	}
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("mirror get: %w", err)
	}

	var cached cachedRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		// A corrupt entry is as good as a miss; the ledger read repairs it.
		return domain.ContentRecord{}, ErrMiss
	}
	return cached.toDomain()
}

func (r *Redis) Put(ctx context.Context, rec domain.ContentRecord) error {
	cached := cachedRecord{
		Fingerprint:    rec.Fingerprint.String(),
		CreatorID:      rec.CreatorID,
		ContributorID:  rec.ContributorID,
		Platform:       rec.Platform,
		CreatedAt:      rec.CreatedAt,
		OwnershipToken: rec.OwnershipToken,
		MisuseCount:    rec.MisuseCount,
	}
	if rec.Parent != nil {
		cached.Parent = rec.Parent.String()
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("mirror put: %w", err)
	}
	return r.client.Set(ctx, mirrorKeyPrefix+rec.Fingerprint.String(), data, r.ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, fp domain.Fingerprint) error {
	return r.client.Del(ctx, mirrorKeyPrefix+fp.String()).Err()
}

func (r *Redis) Fingerprints(ctx context.Context) ([]domain.Fingerprint, error) {
	var out []domain.Fingerprint
	iter := r.client.Scan(ctx, 0, mirrorKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		hex := strings.TrimPrefix(iter.Val(), mirrorKeyPrefix)
		fp, err := domain.ParseFingerprint(hex)
		if err != nil {
			continue
		}
		out = append(out, fp)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("mirror scan: %w", err)
	}
	return out, nil
}

func (c cachedRecord) toDomain() (domain.ContentRecord, error) {
	fp, err := domain.ParseFingerprint(c.Fingerprint)
	if err != nil {
		return domain.ContentRecord{}, ErrMiss
	}
	rec := domain.ContentRecord{
		Fingerprint:    fp,
		CreatorID:      c.CreatorID,
		ContributorID:  c.ContributorID,
		Platform:       c.Platform,
		CreatedAt:      c.CreatedAt,
		OwnershipToken: c.OwnershipToken,
		MisuseCount:    c.MisuseCount,
	}
	if c.Parent != "" {
		parent, err := domain.ParseFingerprint(c.Parent)
		if err != nil {
			return domain.ContentRecord{}, ErrMiss
		}
		rec.Parent = &parent
	}
	return rec, nil
}
