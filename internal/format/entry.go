package format

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/kundli/internal/sizing"
)

// Entry is one file table record.
type Entry struct {
	Offset     uint64   // into the data section
	Size       uint64   // PayloadLen + PathLen
	Perm       [3]uint8 // owner, group, other rwx triads
	Type       Type
	PathLen    uint64
	PayloadLen uint64
	Path       string
}

// NewEntry builds an entry whose derived fields are consistent.
func NewEntry(path string, typ Type, perm [3]uint8, offset, payloadLen uint64) Entry {
	return Entry{
		Offset:     offset,
		Size:       payloadLen + uint64(len(path)),
		Perm:       perm,
		Type:       typ,
		PathLen:    uint64(len(path)),
		PayloadLen: payloadLen,
		Path:       path,
	}
}

// EncodedSize returns the number of bytes AppendBinary writes.
func (e Entry) EncodedSize() int {
	return EntryFixedSize + len(e.Path)
}

// AppendBinary appends the encoded entry to b.
func (e Entry) AppendBinary(b []byte) ([]byte, error) {
	if uint64(len(e.Path)) != e.PathLen {
		return b, fmt.Errorf("%w: path length %d does not match %q", ErrInvalid, e.PathLen, e.Path)
	}
	b = binary.LittleEndian.AppendUint64(b, e.Offset)
	b = binary.LittleEndian.AppendUint64(b, e.Size)
	b = append(b, e.Perm[0], e.Perm[1], e.Perm[2], byte(e.Type))
	b = binary.LittleEndian.AppendUint64(b, e.PathLen)
	b = binary.LittleEndian.AppendUint64(b, e.PayloadLen)
	return append(b, e.Path...), nil
}

// ReadEntry decodes one entry from r. Structural checks that need no
// context (type tag, path length, size consistency) are applied here.
func ReadEntry(r io.Reader) (Entry, error) {
	var buf [EntryFixedSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Entry{}, fmt.Errorf("read entry: %w", truncated(err))
	}

	e := Entry{
		Offset:     binary.LittleEndian.Uint64(buf[0:]),
		Size:       binary.LittleEndian.Uint64(buf[8:]),
		Perm:       [3]uint8{buf[16], buf[17], buf[18]},
		Type:       Type(buf[19]),
		PathLen:    binary.LittleEndian.Uint64(buf[20:]),
		PayloadLen: binary.LittleEndian.Uint64(buf[28:]),
	}
	if !e.Type.Valid() {
		return Entry{}, fmt.Errorf("%w: unknown entry type %d", ErrInvalid, buf[19])
	}
	if e.PathLen == 0 || e.PathLen > MaxPathLen {
		return Entry{}, fmt.Errorf("%w: path length %d out of range", ErrInvalid, e.PathLen)
	}

	path := make([]byte, e.PathLen)
	if _, err := io.ReadFull(r, path); err != nil {
		return Entry{}, fmt.Errorf("read entry path: %w", truncated(err))
	}
	e.Path = string(path)

	if sum, ok := sizing.AddUint64(e.PayloadLen, e.PathLen); !ok || sum != e.Size {
		return Entry{}, fmt.Errorf("%w: entry %q size %d != payload %d + path %d",
			ErrInvalid, e.Path, e.Size, e.PayloadLen, e.PathLen)
	}
	if e.Type == TypeDirectory && e.PayloadLen != 0 {
		return Entry{}, fmt.Errorf("%w: directory %q has payload", ErrInvalid, e.Path)
	}
	return e, nil
}

// CheckBounds reports an error if e's payload does not fit in a data
// section of dataLen bytes.
func (e Entry) CheckBounds(dataLen uint64) error {
	if !sizing.InBounds(e.Offset, e.PayloadLen, dataLen) {
		return fmt.Errorf("%w: entry %q range [%d,+%d) exceeds data length %d",
			ErrInvalid, e.Path, e.Offset, e.PayloadLen, dataLen)
	}
	return nil
}
