package registry

import (
	"context"
	"errors"

	"genmark/internal/domain"
	"genmark/internal/ledger"
	dErrors "genmark/pkg/domain-errors"
)

// maxChainHops bounds a derivation chain walk. Chains are expected to be
// short; anything past this is treated as corruption.
const maxChainHops = 64

// Chain walks parent links from the given fingerprint back to the original
// and returns the steps oldest first. A cycle or a walk past maxChainHops
// fails with ErrCorruptChain. A parent link whose record is missing ends the
// walk at the last readable record; the chain is then truncated, not broken.
func (s *Service) Chain(ctx context.Context, fp domain.Fingerprint) ([]domain.ChainStep, error) {
	visited := make(map[domain.Fingerprint]struct{})
	var steps []domain.ChainStep

	current := fp
	for {
		if len(steps) >= maxChainHops {
			return nil, ErrCorruptChain
		}
		if _, seen := visited[current]; seen {
			return nil, ErrCorruptChain
		}
		visited[current] = struct{}{}

		rec, err := s.readLedger(ctx, current)
		if errors.Is(err, ledger.ErrNotFound) {
			if len(steps) == 0 {
				return nil, dErrors.New(dErrors.CodeNotFound, "content is not registered")
			}
			s.logger.WarnContext(ctx, "derivation chain truncated, parent record missing",
				"fingerprint", fp.String(),
				"missing", current.String(),
			)
			break
		}
		if err != nil {
			return nil, s.ledgerError(err, "chain walk failed")
		}

		steps = append(steps, domain.ChainStep{
			Record:      rec,
			IsOriginal:  rec.IsOriginal(),
			Contributor: rec.ContributorID,
		})
		if rec.Parent == nil {
			break
		}
		current = *rec.Parent
	}

	// Collected child first; callers read oldest first.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps, nil
}
