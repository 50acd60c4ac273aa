package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxPathLength is the maximum length for URL paths in logs
	MaxPathLength = 500
	// MaxIPLength covers IPv6 with zone plus some slack for proxy header junk
	MaxIPLength = 64
	// MaxFilenameLength is the maximum length for client or generated filenames in logs
	MaxFilenameLength = 255
	// MaxErrorMessageLength is the maximum length for error messages in logs
	MaxErrorMessageLength = 1000
	// MaxGeneralStringLength is the maximum length for general strings in logs
	MaxGeneralStringLength = 2000
)

// SanitizePath sanitizes a URL path for safe logging
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}
	return SanitizeString(path, MaxPathLength)
}

// SanitizeString sanitizes a general string for safe logging.
// Removes control characters, truncates to maxLength, and validates UTF-8.
func SanitizeString(s string, maxLength int) string {
	if s == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = MaxGeneralStringLength
	}
	s = sanitizeFilterRunes(s)
	if len(s) > maxLength {
		s = s[:maxLength] + "..."
	}
	return s
}

// SanitizeIP sanitizes a client identifier for safe logging
func SanitizeIP(ip string) string {
	return SanitizeString(ip, MaxIPLength)
}

// SanitizeFilename sanitizes a filename (client supplied or generated) for safe logging.
// Newlines are dropped as well so a crafted name cannot forge log lines.
func SanitizeFilename(name string) string {
	name = strings.NewReplacer("\n", "", "\r", "").Replace(name)
	return SanitizeString(name, MaxFilenameLength)
}

// SanitizeError sanitizes an error message for safe logging
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeString(err.Error(), MaxErrorMessageLength)
}

// sanitizeFilterRunes validates UTF-8 and removes control characters (keeps printable, space, tab, newline, CR).
func sanitizeFilterRunes(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	var builder strings.Builder
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}
