package source

import (
	"errors"
	"fmt"
	"io"
)

// Memory is an owned, growable in-memory data section.
type Memory struct {
	buf []byte
}

// NewMemory wraps buf. The Memory takes ownership of it.
func NewMemory(buf []byte) *Memory {
	return &Memory{buf: buf}
}

// Kind reports KindMemory.
func (m *Memory) Kind() Kind { return KindMemory }

// Len returns the section length.
func (m *Memory) Len() uint64 { return uint64(len(m.buf)) }

// Bytes returns the section.
func (m *Memory) Bytes() []byte { return m.buf }

// ReadAt implements io.ReaderAt.
func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	return readAt(m.buf, p, off)
}

// Append adds p to the end of the section and returns the offset it was
// written at.
func (m *Memory) Append(p []byte) uint64 {
	off := uint64(len(m.buf))
	m.buf = append(m.buf, p...)
	return off
}

// AppendFrom streams r into the end of the section in chunks of at most
// chunkSize bytes. It returns the offset of the first byte and the number
// of bytes appended. On error the section is truncated back to its prior
// length.
func (m *Memory) AppendFrom(r io.Reader, chunkSize int) (uint64, uint64, error) {
	if chunkSize <= 0 {
		return 0, 0, fmt.Errorf("source: invalid chunk size %d", chunkSize)
	}
	start := len(m.buf)
	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		m.buf = append(m.buf, chunk[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			m.buf = m.buf[:start]
			return 0, 0, err
		}
	}
	return uint64(start), uint64(len(m.buf) - start), nil
}

// Close releases the buffer.
func (m *Memory) Close() error {
	m.buf = nil
	return nil
}
