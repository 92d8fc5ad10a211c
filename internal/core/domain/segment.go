package domain

import (
	"fmt"
	"strings"
)

// MaxSegmentLength bounds every key segment. It matches the longest function
// name the control plane accepts.
const MaxSegmentLength = 64

// =============================================================================
// Path Segment Validation
// =============================================================================

// ValidateSegment checks that a value can be embedded in a store key without
// escaping its path segment.
//
// The rules are:
//   - The value must not be empty or longer than MaxSegmentLength bytes
//   - Letters, digits, '.', '_', '+' and '-' are allowed
//   - The value must not start with '.' or contain ".."
//
// Example:
//
//	ValidateSegment("version", "1.0.0")       // nil
//	ValidateSegment("version", "../etc")      // *InvalidInputError
//	ValidateSegment("function", "my func")    // *InvalidInputError
func ValidateSegment(field, value string) error {
	if value == "" {
		return NewInvalidInputError(field, "", "must not be empty")
	}
	if len(value) > MaxSegmentLength {
		return NewInvalidInputError(field, "", fmt.Sprintf("must be at most %d characters, got %d", MaxSegmentLength, len(value)))
	}
	for _, r := range value {
		if !isSegmentRune(r) {
			return NewInvalidInputError(field, value, "contains path-unsafe character "+quoteRune(r))
		}
	}
	if strings.HasPrefix(value, ".") || strings.Contains(value, "..") {
		return NewInvalidInputError(field, value, "must not start with '.' or contain '..'")
	}
	return nil
}

func isSegmentRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '+', r == '-':
		return true
	}
	return false
}

func quoteRune(r rune) string {
	return "'" + string(r) + "'"
}
