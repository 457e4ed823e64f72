package entity

import (
	"strings"
	"unicode/utf8"
)

// MaxDescriptionLength is the upper bound, in characters, of a trimmed description.
const MaxDescriptionLength = 1000

// ValidateDescription rejects blank and oversized descriptions before any backend call.
func ValidateDescription(description string) error {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return NewGenerationError(ErrKindValidation, ErrEmptyDescription)
	}
	if utf8.RuneCountInString(trimmed) > MaxDescriptionLength {
		return NewGenerationError(ErrKindValidation, ErrDescriptionTooLong)
	}
	return nil
}
