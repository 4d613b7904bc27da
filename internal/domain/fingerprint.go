package domain

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Fingerprint is a 64-bit perceptual hash of a piece of content. Visually
// similar images produce fingerprints with a low Hamming distance even after
// re-encoding, resizing, or minor edits, which is what makes ledger lookups
// from a modified copy possible.
type Fingerprint uint64

// FingerprintHexLen is the canonical rendering width: 16 lowercase hex digits.
const FingerprintHexLen = 16

// String renders the canonical ledger key form.
func (f Fingerprint) String() string { return fmt.Sprintf("%016x", uint64(f)) }

// Distance returns the Hamming distance to other, in [0, 64].
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f) ^ uint64(other))
}

// ParseFingerprint validates and decodes the canonical 16-character lowercase
// hex rendering. Records are keyed by this exact form on the ledger, so
// uppercase or short input is rejected instead of normalized silently.
func ParseFingerprint(s string) (Fingerprint, error) {
	if len(s) != FingerprintHexLen {
		return 0, fmt.Errorf("fingerprint must be %d hex characters, got %d", FingerprintHexLen, len(s))
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return 0, fmt.Errorf("fingerprint must be lowercase hex: %q", s)
		}
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint: %w", err)
	}
	return Fingerprint(v), nil
}
