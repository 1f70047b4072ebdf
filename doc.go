// Package kundli reads and writes kundli archives: a single sequential
// container of files, directories, and symlinks guarded by a CRC32 of its
// data section.
//
// An archive is a header, a file table, and a data section holding every
// non-directory payload back to back in table order. The table lists
// parents before children so extraction can create directories before the
// files inside them.
//
// # Building
//
//	a := kundli.Create()
//	defer a.Close()
//	if _, err := a.AddDirectory("src"); err != nil {
//	    return err
//	}
//	err := a.CompressParallel("src.kndl", 0)
//
// AddFile inserts any missing parent directories first. Adding a file or
// symlink already in the table returns the existing entry unchanged. Adding
// a directory again keeps its entry and appends only children that are not
// yet in the table.
//
// # Loading
//
// [LoadFull] reads the whole data section and verifies its checksum before
// returning. [Load] reads only the header and table; payloads are fetched
// on demand, from a memory mapping when the section is at least the map
// threshold (see [WithMapThreshold]) and from the file otherwise.
//
// Single-entry reads from a lazily loaded archive ([Archive.FileData],
// [Archive.DecompressFile]) do not verify the checksum. [Archive.Materialize]
// reads and verifies the whole section once; mutating a lazily loaded
// archive materializes it first.
//
// # Extracting
//
//	stats, err := a.DecompressParallel("out", 8)
//
// Per-entry failures are logged and do not stop extraction; the returned
// error joins all of them. Extraction is confined to the destination
// directory.
//
// # Concurrency
//
// Parallel operations run on an [Executor], a worker pool and buffer pool
// owned by the archive or shared between archives with [WithExecutor]. An
// Archive is not safe for concurrent mutation. Reads and extraction may run
// concurrently.
package kundli
