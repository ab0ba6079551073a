package feed

import (
	"bytes"
	"strings"

	"edgegrid/internal/models"
)

const maxTextLen = 4000

// inferSeverity guesses a severity from free text for feeds that omit it.
func inferSeverity(text string) models.Severity {
	u := strings.ToUpper(text)
	switch {
	case strings.Contains(u, "CRITICAL"), strings.Contains(u, "EMERGENCY"), strings.Contains(u, "FATAL"):
		return models.SeverityCritical
	case strings.Contains(u, "OFFLINE"), strings.Contains(u, "FAIL"), strings.Contains(u, "EXCEEDED"):
		return models.SeverityHigh
	case strings.Contains(u, "WARN"), strings.Contains(u, "DEGRADED"), strings.Contains(u, "MAINTENANCE REQUIRED"):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(string(bytes.ToValidUTF8([]byte(s), []byte("?"))))
	if len(s) > maxTextLen {
		s = strings.ToValidUTF8(s[:maxTextLen], "")
	}
	return s
}
