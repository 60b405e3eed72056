package wire

import (
	"errors"
	"fmt"
)

// ErrFamilySealed is returned by Register once a family has been sealed.
var ErrFamilySealed = errors.New("family is sealed")

// UnknownVariantError reports a tag that is not registered in the target family.
type UnknownVariantError struct {
	Family string
	Tag    Tag
	Path   string
}

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown %s variant %d%s", e.Family, e.Tag, at(e.Path))
}

// MissingFieldError reports a required field that is absent from an envelope.
type MissingFieldError struct {
	Path string // dotted path of the enclosing value, empty at the top level
	Name string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q%s", e.Name, at(e.Path))
}

// TypeMismatchError reports a present field whose value is not of the declared kind.
type TypeMismatchError struct {
	Path     string
	Name     string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("field %q%s: expected %s, got %s", e.Name, at(e.Path), e.Expected, e.Actual)
}

// UnexpectedFieldError reports an undeclared field while decoding in strict mode.
type UnexpectedFieldError struct {
	Path string
	Name string
}

func (e *UnexpectedFieldError) Error() string {
	return fmt.Sprintf("unexpected field %q%s", e.Name, at(e.Path))
}

// DuplicateTagError is returned when a tag is registered twice in one family.
type DuplicateTagError struct {
	Family string
	Tag    Tag
}

func (e *DuplicateTagError) Error() string {
	return fmt.Sprintf("duplicate %s tag %d", e.Family, e.Tag)
}

// DepthExceededError reports input nested deeper than the codec allows.
type DepthExceededError struct {
	Path string
	Max  int
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("nesting exceeds maximum depth %d%s", e.Max, at(e.Path))
}

// IsUnknownVariant checks whether err is an UnknownVariantError and returns it.
func IsUnknownVariant(err error) (*UnknownVariantError, bool) {
	var e *UnknownVariantError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsMissingField checks whether err is a MissingFieldError and returns it.
func IsMissingField(err error) (*MissingFieldError, bool) {
	var e *MissingFieldError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsTypeMismatch checks whether err is a TypeMismatchError and returns it.
func IsTypeMismatch(err error) (*TypeMismatchError, bool) {
	var e *TypeMismatchError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Error kinds as reported by ErrorKind.
const (
	ErrKindUnknownVariant  = "unknown_variant"
	ErrKindMissingField    = "missing_field"
	ErrKindTypeMismatch    = "type_mismatch"
	ErrKindUnexpectedField = "unexpected_field"
	ErrKindDuplicateTag    = "duplicate_tag"
	ErrKindDepthExceeded   = "depth_exceeded"
	ErrKindMalformed       = "malformed"
)

// ErrorKind classifies a codec error for metrics labels and API responses.
// Errors that are not codec errors are reported as "malformed".
func ErrorKind(err error) string {
	var (
		unknown    *UnknownVariantError
		missing    *MissingFieldError
		mismatch   *TypeMismatchError
		unexpected *UnexpectedFieldError
		duplicate  *DuplicateTagError
		depth      *DepthExceededError
	)
	switch {
	case errors.As(err, &unknown):
		return ErrKindUnknownVariant
	case errors.As(err, &missing):
		return ErrKindMissingField
	case errors.As(err, &mismatch):
		return ErrKindTypeMismatch
	case errors.As(err, &unexpected):
		return ErrKindUnexpectedField
	case errors.As(err, &duplicate):
		return ErrKindDuplicateTag
	case errors.As(err, &depth):
		return ErrKindDepthExceeded
	default:
		return ErrKindMalformed
	}
}

// ErrorField returns the leaf field name and enclosing path carried by a codec error, if any.
func ErrorField(err error) (name, path string) {
	var (
		missing    *MissingFieldError
		mismatch   *TypeMismatchError
		unexpected *UnexpectedFieldError
		unknown    *UnknownVariantError
		depth      *DepthExceededError
	)
	switch {
	case errors.As(err, &missing):
		return missing.Name, missing.Path
	case errors.As(err, &mismatch):
		return mismatch.Name, mismatch.Path
	case errors.As(err, &unexpected):
		return unexpected.Name, unexpected.Path
	case errors.As(err, &unknown):
		return TypeKey, unknown.Path
	case errors.As(err, &depth):
		return "", depth.Path
	}
	return "", ""
}

func at(path string) string {
	if path == "" {
		return ""
	}
	return " at " + path
}
