package format

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Header is the fixed prefix of an archive.
type Header struct {
	Version   uint8
	Flags     Flags
	Timestamp uint64 // seconds since the Unix epoch
	Checksum  uint32 // CRC32 of the data section
}

// NewHeader returns a current-version header with FlagNone set.
func NewHeader(timestamp uint64) Header {
	return Header{Version: CurrentVersion, Flags: FlagNone, Timestamp: timestamp}
}

// HasChecksum reports whether this header generation stores a checksum.
func (h Header) HasChecksum() bool {
	return h.Version >= Version1
}

// Magic returns the magic written for h's version.
func (h Header) Magic() string {
	if h.Version == Version0 {
		return MagicV0
	}
	return MagicV1
}

// Size returns the encoded size of h.
func (h Header) Size() int {
	if h.Version == Version0 {
		return HeaderSizeV0
	}
	return HeaderSizeV1
}

// AppendBinary appends the encoded header to b.
func (h Header) AppendBinary(b []byte) ([]byte, error) {
	switch h.Version {
	case Version0:
		b = append(b, MagicV0...)
		return append(b, h.Version, byte(h.Flags)), nil
	case Version1:
		b = append(b, MagicV1...)
		b = append(b, h.Version, byte(h.Flags))
		b = binary.LittleEndian.AppendUint64(b, h.Timestamp)
		return binary.LittleEndian.AppendUint32(b, h.Checksum), nil
	default:
		return b, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
}

// ReadHeader decodes a header from r, dispatching on the magic.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSizeV1]byte

	short := len(MagicV1)
	if _, err := io.ReadFull(r, buf[:short]); err != nil {
		return Header{}, fmt.Errorf("read magic: %w", truncated(err))
	}

	var h Header
	switch {
	case string(buf[:short]) == MagicV1:
		if _, err := io.ReadFull(r, buf[short:HeaderSizeV1]); err != nil {
			return Header{}, fmt.Errorf("read header: %w", truncated(err))
		}
		h.Version = buf[short]
		if h.Version != Version1 {
			return Header{}, fmt.Errorf("%w: %d with magic %q", ErrVersion, h.Version, MagicV1)
		}
		h.Flags = Flags(buf[short+1])
		h.Timestamp = binary.LittleEndian.Uint64(buf[short+2:])
		h.Checksum = binary.LittleEndian.Uint32(buf[short+10:])
		return h, nil

	case string(buf[:short]) == MagicV0[:short]:
		if _, err := io.ReadFull(r, buf[short:HeaderSizeV0]); err != nil {
			return Header{}, fmt.Errorf("read header: %w", truncated(err))
		}
		if string(buf[:len(MagicV0)]) != MagicV0 {
			return Header{}, fmt.Errorf("%w: bad magic %q", ErrInvalid, buf[:len(MagicV0)])
		}
		h.Version = buf[len(MagicV0)]
		if h.Version != Version0 {
			return Header{}, fmt.Errorf("%w: %d with magic %q", ErrVersion, h.Version, MagicV0)
		}
		h.Flags = Flags(buf[len(MagicV0)+1])
		return h, nil

	default:
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrInvalid, buf[:short])
	}
}

// truncated maps a clean EOF in the middle of a structure to
// io.ErrUnexpectedEOF.
func truncated(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
