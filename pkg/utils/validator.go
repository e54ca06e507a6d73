package utils

import (
	"fmt"
	"regexp"
)

var controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)

// ValidateAmount validates a quote amount
func ValidateAmount(amount float64) error {
	if amount < 0 {
		return fmt.Errorf("amount must not be negative: %.2f", amount)
	}
	return nil
}

// ValidatePriority validates a request priority value. An empty priority
// is allowed and means default.
func ValidatePriority(priority string) error {
	switch priority {
	case "", "low", "normal", "high", "urgent":
		return nil
	}
	return fmt.Errorf("invalid priority: %s", priority)
}

// SanitizeString strips control characters from user-supplied text
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
