package state

import (
	"fmt"
	"strings"
)

// SanitizeUserID strips every character outside [A-Za-z0-9] so the id can
// be used as a file name or key without path traversal.
func SanitizeUserID(userID string) string {
	var b strings.Builder
	for _, r := range userID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidUserID returns the sanitized id or ErrInvalidUser.
func ValidUserID(userID string) (string, error) {
	id := SanitizeUserID(userID)
	if id == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidUser, userID)
	}
	return id, nil
}
