package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated reports a buffer shorter than its declared contents.
	ErrTruncated = errors.New("truncated")

	// ErrBadSignature reports a buffer that does not start with the
	// expected magic.
	ErrBadSignature = errors.New("bad signature")

	// ErrUnsupportedVersion reports a version byte with no reader.
	ErrUnsupportedVersion = errors.New("unsupported version")
)

// ParseError describes a decoding failure.
type ParseError struct {
	Kind    Kind
	Version uint8

	// Expected and Actual are byte counts, set for truncation.
	Expected int
	Actual   int

	Err error
}

func (e *ParseError) Error() string {
	switch {
	case errors.Is(e.Err, ErrTruncated):
		return fmt.Sprintf("%s v%d: %v: expected %d bytes, got %d", e.Kind, e.Version, e.Err, e.Expected, e.Actual)
	case errors.Is(e.Err, ErrUnsupportedVersion):
		return fmt.Sprintf("%s: %v %d", e.Kind, e.Err, e.Version)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsTruncated reports whether err is a truncation failure.
func IsTruncated(err error) bool { return errors.Is(err, ErrTruncated) }

// IsBadSignature reports whether err is a signature mismatch.
func IsBadSignature(err error) bool { return errors.Is(err, ErrBadSignature) }

// IsUnsupportedVersion reports whether err names an unknown version.
func IsUnsupportedVersion(err error) bool { return errors.Is(err, ErrUnsupportedVersion) }

func truncated(k Kind, version uint8, expected, actual int) *ParseError {
	return &ParseError{Kind: k, Version: version, Expected: expected, Actual: actual, Err: ErrTruncated}
}
