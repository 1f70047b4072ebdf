package kundli

import (
	"io/fs"

	"github.com/meigma/kundli/internal/format"
	"github.com/meigma/kundli/internal/pathutil"
)

// Re-export wire types for the public API.
type (
	// Entry is one file table record.
	Entry = format.Entry

	// EntryType tags the kind of object an entry describes.
	EntryType = format.Type

	// Header is the archive header.
	Header = format.Header

	// Flags is the header flag bitmask.
	Flags = format.Flags
)

// Entry types.
const (
	TypeRegular   = format.TypeRegular
	TypeDirectory = format.TypeDirectory
	TypeSymlink   = format.TypeSymlink
)

// Header flag bits. They are recorded but carry no behavior.
const (
	FlagNone       = format.FlagNone
	FlagCompressed = format.FlagCompressed
	FlagEncrypted  = format.FlagEncrypted
)

// Format versions.
const (
	Version0       = format.Version0
	Version1       = format.Version1
	CurrentVersion = format.CurrentVersion
)

// Mode returns the permission bits and type of e as an fs.FileMode.
func Mode(e Entry) fs.FileMode {
	mode := pathutil.UnpackPerm(e.Perm)
	switch e.Type {
	case TypeDirectory:
		mode |= fs.ModeDir
	case TypeSymlink:
		mode |= fs.ModeSymlink
	}
	return mode
}

func isDir(e *Entry) bool    { return e.Type == TypeDirectory }
func isNonDir(e *Entry) bool { return e.Type != TypeDirectory }

// PermString formats the permission bits of e as in ls -l, e.g. "rwxr-x---".
func PermString(e Entry) string {
	return pathutil.FormatPerm(e.Perm)
}
