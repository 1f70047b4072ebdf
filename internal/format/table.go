package format

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxPrealloc caps the table capacity reserved from an untrusted count.
const maxPrealloc = 1 << 14

// Layout is everything that precedes the data section.
type Layout struct {
	Header  Header
	Entries []Entry
	DataLen uint64

	// DataStart is the file offset of the first data byte.
	DataStart int64
}

// AppendLayout appends header, table, and data length to b.
func AppendLayout(b []byte, h Header, entries []Entry, dataLen uint64) ([]byte, error) {
	b, err := h.AppendBinary(b)
	if err != nil {
		return b, err
	}
	b = binary.LittleEndian.AppendUint64(b, uint64(len(entries)))
	for i := range entries {
		if b, err = entries[i].AppendBinary(b); err != nil {
			return b, err
		}
	}
	return binary.LittleEndian.AppendUint64(b, dataLen), nil
}

// LayoutSize returns the encoded size of the layout for h and entries.
func LayoutSize(h Header, entries []Entry) int {
	n := h.Size() + 8 + 8
	for i := range entries {
		n += entries[i].EncodedSize()
	}
	return n
}

// ReadLayout decodes the header, file table, and data length from r.
// Every entry must lie within the declared data length.
func ReadLayout(r io.Reader) (*Layout, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	var word [8]byte
	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, fmt.Errorf("read file count: %w", truncated(err))
	}
	count := binary.LittleEndian.Uint64(word[:])

	entries := make([]Entry, 0, min(count, maxPrealloc))
	start := int64(h.Size()) + 8
	for i := uint64(0); i < count; i++ {
		e, err := ReadEntry(r)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
		start += int64(e.EncodedSize())
	}

	if _, err := io.ReadFull(r, word[:]); err != nil {
		return nil, fmt.Errorf("read data length: %w", truncated(err))
	}
	dataLen := binary.LittleEndian.Uint64(word[:])
	for i := range entries {
		if err := entries[i].CheckBounds(dataLen); err != nil {
			return nil, err
		}
	}

	return &Layout{
		Header:    h,
		Entries:   entries,
		DataLen:   dataLen,
		DataStart: start + 8,
	}, nil
}
