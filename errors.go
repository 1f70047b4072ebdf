package kundli

import (
	"errors"
	"fmt"
	"io"

	"github.com/meigma/kundli/internal/format"
)

// Sentinel errors. Returned errors wrap one of these, so callers classify
// failures with errors.Is. Filesystem failures additionally wrap the
// underlying *fs.PathError.
var (
	// ErrFormat is returned when an archive has a bad magic, an unsupported
	// version, or an inconsistent file table.
	ErrFormat = errors.New("kundli: invalid archive format")

	// ErrIntegrity is returned when the data section does not match the
	// checksum stored in the header.
	ErrIntegrity = errors.New("kundli: checksum mismatch")

	// ErrFilesystem is returned for missing paths, permission denials, and
	// failed directory or symlink creation.
	ErrFilesystem = errors.New("kundli: filesystem error")

	// ErrIO is returned for short reads and writes.
	ErrIO = errors.New("kundli: i/o error")

	// ErrConfiguration is returned for invalid thread counts and unusable
	// archive paths.
	ErrConfiguration = errors.New("kundli: invalid configuration")

	// ErrNotFound is returned when no entry has the requested path.
	ErrNotFound = errors.New("kundli: entry not found")

	// ErrOutOfRange is returned when an entry's payload lies outside the
	// data section.
	ErrOutOfRange = errors.New("kundli: payload out of range")

	// ErrSizeOverflow is returned when a size does not fit the platform's
	// integer types.
	ErrSizeOverflow = errors.New("kundli: size overflow")
)

// layoutError classifies an error from decoding the header and file table.
func layoutError(path string, err error) error {
	switch {
	case errors.Is(err, format.ErrInvalid), errors.Is(err, format.ErrVersion):
		return fmt.Errorf("%w: %s: %w", ErrFormat, path, err)
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %s: %w", ErrIO, path, err)
	default:
		return fmt.Errorf("%w: %s: %w", ErrFilesystem, path, err)
	}
}
