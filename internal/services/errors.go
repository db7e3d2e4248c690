package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation            = errors.New("validation error")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyResolved       = errors.New("already resolved")
	ErrNotResolved           = errors.New("not resolved")
	ErrUnsupportedResolution = errors.New("unsupported resolution")
	ErrInvalidState          = errors.New("invalid state")
	ErrProvider              = errors.New("provider error")
	ErrInternal              = errors.New("internal error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrInternal
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the stable machine-readable classification of err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, ErrNotResolved):
		return "not_resolved"
	case errors.Is(err, ErrUnsupportedResolution):
		return "unsupported_resolution"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrProvider):
		return "provider"
	default:
		return "internal"
	}
}

// UserMessage strips the marker prefix and any wrapped low-level cause so the
// result is safe to show to callers. Internal errors collapse to a generic
// sentence.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if Kind(err) == "internal" {
		return "internal error"
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrValidation, ErrNotFound, ErrAlreadyResolved, ErrNotResolved,
		ErrUnsupportedResolution, ErrInvalidState, ErrProvider,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// ErrorDetails is the structured view of a service error used by log fields
// and HTTP error bodies.
type ErrorDetails struct {
	Kind    string
	Message string
	Cause   string
}

// Details extracts the classification, user-safe message, and raw cause text
// from err. Cause is meant for logs only.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	return ErrorDetails{
		Kind:    Kind(err),
		Message: UserMessage(err),
		Cause:   err.Error(),
	}
}
