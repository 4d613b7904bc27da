// Package notify delivers creator-facing notifications. The only channel
// implemented is structured logging; richer channels plug in behind the same
// interface.
package notify

import (
	"context"
	"log/slog"

	"genmark/internal/domain"
	"genmark/pkg/email"
)

// Notifier informs a creator about activity on their content.
type Notifier interface {
	// MisuseFlagged tells the creator that a flag was filed against their
	// registered content. Delivery is best-effort.
	MisuseFlagged(ctx context.Context, rec domain.ContentRecord, flag domain.FlagRecord) error
}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) MisuseFlagged(ctx context.Context, rec domain.ContentRecord, flag domain.FlagRecord) error {
	n.logger.InfoContext(ctx, "misuse notification",
		"creator", rec.CreatorID,
		"creator_name", email.DisplayName(rec.CreatorID),
		"fingerprint", rec.Fingerprint.String(),
		"flag_index", flag.Index,
		"misuse_count", rec.MisuseCount,
	)
	return nil
}
