package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/ulule/limiter/v3"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	voicenoteNamePattern = regexp.MustCompile(`^voicenote_[0-9]+_[0-9a-f]{8}\.webm$`)
)

func init() {
	Validate = validator.New()

	// These should never fail in normal operation
	if err := Validate.RegisterValidation("voicenote_name", validateVoicenoteName); err != nil {
		panic(fmt.Sprintf("failed to register voicenote_name validator: %v", err))
	}
	if err := Validate.RegisterValidation("burst_rate", validateBurstRate); err != nil {
		panic(fmt.Sprintf("failed to register burst_rate validator: %v", err))
	}
}

// validateVoicenoteName validates that a string is a generated voicenote filename
func validateVoicenoteName(fl validator.FieldLevel) bool {
	return ValidateVoicenoteName(fl.Field().String()) == nil
}

// validateBurstRate validates that a string is an ulule-formatted rate
func validateBurstRate(fl validator.FieldLevel) bool {
	return ValidateBurstRate(fl.Field().String()) == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateVoicenoteName checks that name is a bare generated filename such as
// voicenote_1704067200_a1b2c3d4.webm. Path separators and dot segments never match.
func ValidateVoicenoteName(name string) error {
	if !voicenoteNamePattern.MatchString(name) {
		return fmt.Errorf("invalid voicenote filename: %q", name)
	}
	return nil
}

// ValidateBurstRate validates a rate in limiter format ("20-M", "5-S", "1000-H")
func ValidateBurstRate(rate string) error {
	if _, err := limiter.NewRateFromFormatted(rate); err != nil {
		return fmt.Errorf("invalid burst rate %q (must look like 20-M): %w", rate, err)
	}
	return nil
}
