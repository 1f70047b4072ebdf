// Package checksum computes the CRC32 that guards an archive's data section.
//
// Two implementations are provided and must agree bit for bit: a portable
// table-driven one and an accelerated one that hands the aligned bulk of the
// input to carry-less multiply (amd64) or CRC32 (arm64) instructions.
package checksum

import (
	"sync"

	kcrc "github.com/klauspost/crc32"
	"golang.org/x/sys/cpu"
)

// Polynomial is the reflected IEEE 802.3 polynomial.
const Polynomial = 0xEDB88320

// Size is the encoded checksum width in bytes.
const Size = 4

var table = makeTable(Polynomial)

func makeTable(poly uint32) *[256]uint32 {
	var t [256]uint32
	for i := range t {
		crc := uint32(i)
		for range 8 {
			if crc&1 == 1 {
				crc = crc>>1 ^ poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return &t
}

// Sum returns the table-driven CRC32 of p. Empty input yields 0.
func Sum(p []byte) uint32 {
	return Update(0, p)
}

// Update returns the checksum of the data that produced crc followed by p.
// Pass 0 to start a new checksum.
func Update(crc uint32, p []byte) uint32 {
	crc = ^crc
	for _, b := range p {
		crc = table[byte(crc)^b] ^ crc>>8
	}
	return ^crc
}

// HasAcceleration reports whether the CPU has the instructions the
// accelerated path relies on. The probe runs once per process.
var HasAcceleration = sync.OnceValue(func() bool {
	return (cpu.X86.HasPCLMULQDQ && cpu.X86.HasSSE41) || cpu.ARM64.HasCRC32
})

// Accelerated computes the same value as Sum. The 8-byte aligned bulk and
// one trailing 4-byte block go through the hardware path, the remaining
// bytes through the table. Without hardware support it is Sum.
func Accelerated(p []byte) uint32 {
	if !HasAcceleration() {
		return Sum(p)
	}
	bulk := len(p) &^ 7
	crc := kcrc.Update(0, kcrc.IEEETable, p[:bulk])
	rest := p[bulk:]
	if len(rest) >= 4 {
		crc = kcrc.Update(crc, kcrc.IEEETable, rest[:4])
		rest = rest[4:]
	}
	return Update(crc, rest)
}

// Checksum is the entry point used by the archive engine.
func Checksum(p []byte) uint32 {
	if HasAcceleration() {
		return Accelerated(p)
	}
	return Sum(p)
}
