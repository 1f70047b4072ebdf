// Package write splits an archive's data section into chunks and writes
// them into a pre-sized file from several workers at once.
//
// Chunks never overlap, so the file content does not depend on which worker
// writes which chunk or in what order.
package write

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/meigma/kundli/internal/workpool"
)

// Chunk size bounds.
const (
	MinChunk = 256 << 10
	MaxChunk = 8 << 20
)

// Chunk is a byte range of the data section.
type Chunk struct {
	Off int64
	Len int64
}

// ChunkSize targets two chunks per worker, clamped to [MinChunk, MaxChunk].
func ChunkSize(dataSize int64, workers int) int64 {
	if workers < 1 {
		workers = 1
	}
	size := dataSize / int64(workers*2)
	return min(max(size, MinChunk), MaxChunk)
}

// Plan divides dataSize bytes into consecutive chunks of ChunkSize. The
// last chunk may be short. An empty section has no chunks.
func Plan(dataSize int64, workers int) []Chunk {
	if dataSize <= 0 {
		return nil
	}
	size := ChunkSize(dataSize, workers)
	chunks := make([]Chunk, 0, (dataSize+size-1)/size)
	for off := int64(0); off < dataSize; off += size {
		chunks = append(chunks, Chunk{Off: off, Len: min(size, dataSize-off)})
	}
	return chunks
}

// Preextend grows f to size bytes by writing a sentinel byte at the final
// offset. The sentinel is overwritten by the last chunk.
func Preextend(f *os.File, size int64) error {
	if size <= 0 {
		return nil
	}
	if _, err := f.WriteAt([]byte{0}, size-1); err != nil {
		return fmt.Errorf("pre-extend %s to %d bytes: %w", f.Name(), size, err)
	}
	return nil
}

// Parallel writes data into path starting at file offset base. workers
// tasks are submitted to pool; each opens its own handle and claims the
// next unwritten chunk from a shared counter until none remain. Parallel
// returns after every task has finished.
func Parallel(pool workpool.Submitter, path string, base int64, data []byte, workers int) error {
	chunks := Plan(int64(len(data)), workers)
	if len(chunks) == 0 {
		return nil
	}
	workers = min(max(workers, 1), len(chunks))

	var next atomic.Int64
	futures := make([]*workpool.Future, 0, workers)
	for range workers {
		f, err := pool.Submit(func() error {
			return claimChunks(path, base, data, chunks, &next)
		})
		if err != nil {
			// wait for what was already queued before reporting
			_ = workpool.WaitAll(futures)
			return fmt.Errorf("submit chunk writer: %w", err)
		}
		futures = append(futures, f)
	}
	return workpool.WaitAll(futures)
}

func claimChunks(path string, base int64, data []byte, chunks []Chunk, next *atomic.Int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}

	for {
		i := next.Add(1) - 1
		if i >= int64(len(chunks)) {
			break
		}
		c := chunks[i]
		if _, err := f.WriteAt(data[c.Off:c.Off+c.Len], base+c.Off); err != nil {
			_ = f.Close()
			return fmt.Errorf("write chunk at %d: %w", c.Off, err)
		}
	}
	return f.Close()
}
