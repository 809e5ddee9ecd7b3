// Package errors provides error wrapping utilities for context-aware error messages.
// Wrapped errors carry the stack of the wrap site; print them with %+v.
package errors

import (
	pkgerrors "github.com/pkg/errors"
)

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	return pkgerrors.Wrap(err, context)
}

// Wrapf is Wrap with a formatted context.
func Wrapf(err error, format string, args ...any) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// New returns an error with the given text.
func New(text string) error {
	return pkgerrors.New(text)
}

// Cause returns the innermost error of a Wrap chain.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return pkgerrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return pkgerrors.As(err, target)
}
