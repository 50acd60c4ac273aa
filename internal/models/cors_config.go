package models

import "strings"

// CorsConfig holds CORS configuration for the embedding site(s).
type CorsConfig struct {
	AllowedOrigins   string `json:"allowed_origins"` // Comma-separated
	AllowCredentials bool   `json:"allow_credentials"`
	MaxAge           int    `json:"max_age"`
}

// Origins returns allowed origins as a slice (split by comma, trimmed, deduplicated).
func (c CorsConfig) Origins() []string {
	return SplitOrigins(c.AllowedOrigins)
}

// SplitOrigins splits a comma-separated origin list.
func SplitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		s := strings.TrimSpace(p)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
