package fingerprint

import "genmark/internal/domain"

// Match classifies the relationship between two fingerprints.
type Match string

const (
	MatchIdentical     Match = "identical"
	MatchReencoded     Match = "reencoded"
	MatchNearDuplicate Match = "near_duplicate"
	MatchUnrelated     Match = "unrelated"
)

// Classifier maps Hamming distances to match classes. Two bounds matter: a
// re-encoded copy of the same image lands within a few bits, while an edited
// one drifts further. Both are configuration, not constants.
type Classifier struct {
	reencode int
	edit     int
}

// Reference thresholds, measured against the transform in this package.
const (
	// ReencodeThreshold catches the same image after format conversion or
	// recompression.
	ReencodeThreshold = 4
	// EditThreshold catches the same image after visible edits such as
	// brightness, crop, or blur.
	EditThreshold = 10
)

// NewClassifier builds a classifier with the given re-encode and edit bounds.
func NewClassifier(reencodeThreshold, editThreshold int) *Classifier {
	return &Classifier{reencode: reencodeThreshold, edit: editThreshold}
}

// Distance returns the Hamming distance between two fingerprints, in [0, 64].
func Distance(a, b domain.Fingerprint) int { return a.Distance(b) }

// Classify buckets the pair by distance: 0 is identical, within the re-encode
// bound is the same image after recompression, within the edit bound is a
// near-duplicate, anything further is unrelated.
func (c *Classifier) Classify(a, b domain.Fingerprint) Match {
	switch d := a.Distance(b); {
	case d == 0:
		return MatchIdentical
	case d <= c.reencode:
		return MatchReencoded
	case d <= c.edit:
		return MatchNearDuplicate
	default:
		return MatchUnrelated
	}
}
