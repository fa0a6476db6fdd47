// Package paimonerr defines the error kinds surfaced by the table engine.
package paimonerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a snapshot directory, snapshot file or
	// requested snapshot id/timestamp does not exist.
	ErrNotFound = errors.New("paimon: not found")

	// ErrParse is returned when a metadata document cannot be decoded.
	ErrParse = errors.New("paimon: parse error")

	// ErrUnsupported is returned for operations the engine refuses rather than
	// silently producing wrong results.
	ErrUnsupported = errors.New("paimon: unsupported")

	ErrInvalidArgument = errors.New("paimon: invalid argument")
	ErrAlreadyExists   = errors.New("paimon: already exists")

	// ErrEmptyCommit is returned when a commit carries no data files.
	ErrEmptyCommit = errors.New("paimon: nothing to commit")
)

// NotFoundError describes which artifact was missing.
type NotFoundError struct {
	What string
	Path string
}

func (e *NotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("paimon: %s not found", e.What)
	}
	return fmt.Sprintf("paimon: %s not found: %s", e.What, e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ParseError wraps a decode failure for a metadata file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("paimon: parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Unsupported returns an error wrapping ErrUnsupported with a reason.
func Unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// InvalidArgument returns an error wrapping ErrInvalidArgument with a reason.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
