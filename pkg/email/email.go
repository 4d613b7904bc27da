package email

import (
	"strings"
	"unicode"
)

// DisplayName derives a human-readable name from a creator identifier. When
// the identifier is an email address the local part is split and capitalized;
// otherwise the identifier is returned unchanged. Used for notification
// payloads where only an opaque creator ID is recorded on the ledger.
func DisplayName(creatorID string) string {
	at := strings.IndexByte(creatorID, '@')
	if at <= 0 {
		return creatorID
	}

	parts := strings.FieldsFunc(creatorID[:at], func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return creatorID
	}

	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
