// Package types defines the enumerations and error shapes shared by the
// search, quote, and feedback packages.
//
// Each package owns its own domain model; only values that cross package
// boundaries (who is asking, what kind of project it is, how a request failed
// validation) live here to avoid circular imports.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidUserType is returned when a request names a user type outside
// the supported set.
var ErrInvalidUserType = errors.New("invalid user type")

// UserType identifies who requested a quote or submitted feedback.
type UserType string

const (
	UserContractor UserType = "contractor"
	UserArchitect  UserType = "architect"
	UserClient     UserType = "client"
)

// IsValid reports whether u is a recognised user type.
func (u UserType) IsValid() bool {
	switch u {
	case UserContractor, UserArchitect, UserClient:
		return true
	}
	return false
}

// ParseUserType normalises s and validates it. An error wrapping
// [ErrInvalidUserType] is returned for unknown values, including the empty
// string.
func ParseUserType(s string) (UserType, error) {
	u := UserType(strings.ToLower(strings.TrimSpace(s)))
	if !u.IsValid() {
		return "", NewValidationError("user_type", s, ErrInvalidUserType)
	}
	return u, nil
}

// ProjectType selects the VAT regime of a quote.
type ProjectType string

const (
	// ProjectUnspecified defaults to the new-build VAT rate.
	ProjectUnspecified ProjectType = ""
	ProjectRenovation  ProjectType = "renovation"
	ProjectNewBuild    ProjectType = "new_build"
)

// ParseProjectType maps free-form project descriptions onto a [ProjectType].
// Anything mentioning "new" is a new build, any other non-empty value is a
// renovation, and the empty string stays unspecified.
func ParseProjectType(s string) ProjectType {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "":
		return ProjectUnspecified
	case strings.Contains(v, "new"), strings.Contains(v, "neuf"):
		return ProjectNewBuild
	default:
		return ProjectRenovation
	}
}

// ValidationError wraps a sentinel with the request field that failed.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a [ValidationError].
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}
