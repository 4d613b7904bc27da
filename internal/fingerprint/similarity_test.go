package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"genmark/internal/domain"
)

func TestDistanceCountsDifferingBits(t *testing.T) {
	base := domain.Fingerprint(0xa9e3c4b2d1f5e7c8)

	// Flipping exactly k bits must report distance k, over the whole range.
	for k := 0; k <= 64; k++ {
		flipped := base
		for i := 0; i < k; i++ {
			flipped ^= 1 << uint(i)
		}
		assert.Equal(t, k, Distance(base, flipped), "k=%d", k)
	}

	assert.Equal(t, 0, Distance(base, base))
	assert.Equal(t, 64, Distance(0, 0xffffffffffffffff))
}

func TestClassify(t *testing.T) {
	base := domain.Fingerprint(0xffff000011110000)
	flip := func(k int) domain.Fingerprint {
		out := base
		for i := 0; i < k; i++ {
			out ^= 1 << uint(i)
		}
		return out
	}

	c := NewClassifier(ReencodeThreshold, EditThreshold)

	assert.Equal(t, MatchIdentical, c.Classify(base, base))
	assert.Equal(t, MatchReencoded, c.Classify(base, flip(1)))
	assert.Equal(t, MatchReencoded, c.Classify(base, flip(4)))
	assert.Equal(t, MatchNearDuplicate, c.Classify(base, flip(5)))
	assert.Equal(t, MatchNearDuplicate, c.Classify(base, flip(10)))
	assert.Equal(t, MatchUnrelated, c.Classify(base, flip(11)))
}

func TestClassifyHonorsCustomBounds(t *testing.T) {
	base := domain.Fingerprint(0xffff000011110000)
	flipped := base ^ 0b111

	// The same 3-bit drift reads differently as the bounds tighten.
	assert.Equal(t, MatchReencoded, NewClassifier(4, 10).Classify(base, flipped))
	assert.Equal(t, MatchNearDuplicate, NewClassifier(1, 10).Classify(base, flipped))
	assert.Equal(t, MatchUnrelated, NewClassifier(1, 2).Classify(base, flipped))
}
