// Package format encodes and decodes the archive wire layout.
//
// All integers are little-endian and fields are packed without padding:
//
//	Header     magic | version:u8 | flags:u8 | [timestamp:u64 | crc32:u32]
//	FileCount  u64
//	Entry      offset:u64 | size:u64 | perm:[3]u8 | type:u8 | path_len:u64 | payload_len:u64 | path
//	DataLen    u64
//	Data       payload bytes in table order
//
// The magic selects the header generation and the version byte must agree
// with it. Version 0 headers carry no timestamp or checksum.
package format

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid is returned when the encoded bytes are not a valid archive.
	ErrInvalid = errors.New("format: invalid archive")
	// ErrVersion is returned for a known magic with an unsupported version.
	ErrVersion = errors.New("format: unsupported version")
)

// Header magics by generation.
const (
	MagicV0 = "KUNDLI\x00"
	MagicV1 = "KNDL\x00"
)

// Format versions.
const (
	Version0 uint8 = 0
	Version1 uint8 = 1

	CurrentVersion = Version1
)

// Encoded sizes.
const (
	HeaderSizeV0 = len(MagicV0) + 2
	HeaderSizeV1 = len(MagicV1) + 2 + 8 + 4

	// EntryFixedSize is the encoded size of an entry excluding its path.
	EntryFixedSize = 8 + 8 + 3 + 1 + 8 + 8

	// MaxPathLen bounds path_len so a corrupt table cannot force a huge
	// allocation.
	MaxPathLen = 64 << 10
)

// Flags is the header flag bitmask. The bits are recorded but carry no
// behavior.
type Flags uint8

// Flag bits.
const (
	FlagNone       Flags = 1 << 0
	FlagCompressed Flags = 1 << 1
	FlagEncrypted  Flags = 1 << 2
)

// Type tags the kind of filesystem object an entry describes.
type Type uint8

// Entry types.
const (
	TypeRegular   Type = 0
	TypeDirectory Type = 1
	TypeSymlink   Type = 2
)

// Valid reports whether t is a known type tag.
func (t Type) Valid() bool {
	return t <= TypeSymlink
}

func (t Type) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDirectory:
		return "dir"
	case TypeSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}
