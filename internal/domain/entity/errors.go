package entity

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrKindConfiguration ErrorKind = "configuration"
	ErrKindTransport     ErrorKind = "transport"
	ErrKindMalformed     ErrorKind = "malformed_response"
	ErrKindValidation    ErrorKind = "validation"
)

// ProviderName is how the completion backend is named in user-facing errors.
const ProviderName = "CodeLlama"

// User-facing messages, shown verbatim.
var (
	ErrEmptyDescription   = errors.New("Please provide a valid description.")
	ErrDescriptionTooLong = fmt.Errorf("Description is too long. Please keep it under %d characters.", MaxDescriptionLength)
	ErrMissingAPIKey      = errors.New("TOGETHER_API_KEY is missing in the secrets configuration. Ensure it's set correctly.")
	ErrNoChoices          = errors.New("Invalid response from Together API.")
	ErrEmptyCompletion    = errors.New("Empty completion returned by Together API.")
)

// GenerationError carries the kind of failure alongside its cause so callers
// can branch on it; it is turned into text only when shown to a user.
type GenerationError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func NewGenerationError(kind ErrorKind, err error) *GenerationError {
	return &GenerationError{Kind: kind, Provider: ProviderName, Err: err}
}

func (e *GenerationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of err, or "" when err is not a *GenerationError.
func KindOf(err error) ErrorKind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// DisplayError renders err the way the UI shows it. Validation errors are shown
// as-is, anything else as "Error with <provider>: <details>".
func DisplayError(err error) string {
	if err == nil {
		return ""
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		if ge.Kind == ErrKindValidation {
			return ge.Err.Error()
		}
		return fmt.Sprintf("Error with %s: %v", ge.Provider, ge.Err)
	}
	return fmt.Sprintf("Error with %s: %v", ProviderName, err)
}
