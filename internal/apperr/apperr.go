// Package apperr is the error taxonomy shared by services and the HTTP layer.
// Every error that leaves a service is a *goerrors.Error carrying an HTTP
// status and a stable text code.
package apperr

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextValidation      = "VALIDATION_ERROR"
	TextConflict        = "CONFLICT"
	TextUnauthenticated = "UNAUTHENTICATED"
	TextForbidden       = "FORBIDDEN"
	TextNotFound        = "NOT_FOUND"
	TextInternal        = "INTERNAL_ERROR"
)

// Validation reports a missing or malformed request field.
func Validation(field, message string) error {
	return goerrors.NewValidation("validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextValidation)
}

// Conflict reports a duplicate unique key. It is answered with 400, not 409.
func Conflict(message string) error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextConflict)
}

func Unauthenticated(message string) error {
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(TextUnauthenticated)
}

func Forbidden(message string) error {
	return goerrors.New(message, goerrors.CategoryAuthz).
		WithCode(http.StatusForbidden).
		WithTextCode(TextForbidden)
}

func NotFound(message string) error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TextNotFound)
}

// Internal wraps a hashing, signing or datastore failure.
func Internal(source error, message string) error {
	return internal(source, message)
}

func internal(source error, message string) *goerrors.Error {
	if source == nil {
		return goerrors.New(message, goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(TextInternal)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextInternal)
}

// Normalize returns err as a *goerrors.Error. Errors that did not come from
// this package become Internal with the original message.
func Normalize(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code == 0 {
			rich.Code = http.StatusInternalServerError
		}
		if strings.TrimSpace(rich.TextCode) == "" {
			rich.TextCode = TextInternal
		}
		return rich
	}
	return internal(err, err.Error())
}

// Code returns the stable text code of err, or TextInternal.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return Normalize(err).TextCode
}

func IsValidation(err error) bool      { return Code(err) == TextValidation }
func IsConflict(err error) bool        { return Code(err) == TextConflict }
func IsUnauthenticated(err error) bool { return Code(err) == TextUnauthenticated }
func IsForbidden(err error) bool       { return Code(err) == TextForbidden }
func IsNotFound(err error) bool        { return Code(err) == TextNotFound }
func IsInternal(err error) bool        { return Code(err) == TextInternal }

// Fields lists the field names attached to a validation error.
func Fields(err error) []string {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return nil
	}
	fields := make([]string, 0, len(rich.ValidationErrors))
	for _, fe := range rich.ValidationErrors {
		fields = append(fields, fe.Field)
	}
	return fields
}
