package logger

import (
	"fmt"
	"strings"
)

// SensitiveKeywords mark field keys whose values must never reach log output verbatim
var SensitiveKeywords = []string{
	"password", "passwd", "secret", "credential", "token", "api_key",
	"authorization", "cookie", "session", "national_id", "phone", "address",
}

// partialKeywords keep a short suffix so operators can still correlate entries
var partialKeywords = []string{"national_id", "phone"}

const (
	redactedPlaceholder = "[REDACTED]"
	visibleSuffixLen    = 4
)

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range SensitiveKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// redactValue masks a sensitive value. Identifiers keep their last four characters.
func redactValue(key string, value any) string {
	if value == nil {
		return ""
	}

	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	if s == "" {
		return ""
	}

	lower := strings.ToLower(key)
	for _, keyword := range partialKeywords {
		if strings.Contains(lower, keyword) {
			return MaskIdentifier(s)
		}
	}
	return redactedPlaceholder
}

// MaskIdentifier replaces all but the last four characters with '*'
func MaskIdentifier(s string) string {
	runes := []rune(s)
	if len(runes) <= visibleSuffixLen {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-visibleSuffixLen) + string(runes[len(runes)-visibleSuffixLen:])
}
