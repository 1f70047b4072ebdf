package kundli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/kundli/internal/source"
)

// Info describes an archive.
type Info struct {
	Version     uint8
	Flags       Flags
	Created     time.Time // zero for version 0 archives
	Checksum    uint32
	HasChecksum bool

	Entries  int
	Files    int
	Dirs     int
	Symlinks int

	DataLen uint64
	// Loaded is false while a lazily loaded data section has not been
	// read into memory.
	Loaded bool
	Source string
}

// Describe summarizes the archive header and table.
func (a *Archive) Describe() Info {
	a.mu.RLock()
	hdr := a.header
	info := Info{
		Version:     hdr.Version,
		Flags:       hdr.Flags,
		Checksum:    hdr.Checksum,
		HasChecksum: hdr.HasChecksum(),
		Entries:     len(a.entries),
	}
	if hdr.HasChecksum() {
		info.Created = time.Unix(int64(hdr.Timestamp), 0).UTC() //nolint:gosec // timestamps fit in int64
	}
	if a.src != nil {
		info.DataLen = a.src.Len()
		info.Source = a.src.Kind().String()
		_, info.Loaded = source.Bytes(a.src)
	}
	a.mu.RUnlock()

	for i := range a.entries {
		switch a.entries[i].Type {
		case TypeDirectory:
			info.Dirs++
		case TypeSymlink:
			info.Symlinks++
		default:
			info.Files++
		}
	}
	return info
}

// WriteTo writes a human-readable summary to w.
func (i Info) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Version: %d\n", i.Version)
	fmt.Fprintf(&b, "Flags: %d\n", i.Flags)
	if i.HasChecksum {
		fmt.Fprintf(&b, "Created: %s (%s)\n", i.Created.Format(time.RFC3339), humanize.Time(i.Created))
		fmt.Fprintf(&b, "CRC32: %08x\n", i.Checksum)
	}
	fmt.Fprintf(&b, "Files: %s (%s regular, %s directories, %s symlinks)\n",
		humanize.Comma(int64(i.Entries)), humanize.Comma(int64(i.Files)),
		humanize.Comma(int64(i.Dirs)), humanize.Comma(int64(i.Symlinks)))
	if i.Loaded {
		fmt.Fprintf(&b, "Data Size: %s (%s bytes)\n", humanize.IBytes(i.DataLen), humanize.Comma(int64(i.DataLen))) //nolint:gosec // display only
	} else {
		fmt.Fprintf(&b, "Data Size: %s (not loaded, lazy loading enabled)\n", humanize.IBytes(i.DataLen))
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// List writes one line per entry to w in the style of ls -l: type and
// permissions, payload size, path, and for symlinks the target.
func (a *Archive) List(w io.Writer) error {
	return a.ListStyled(w, nil)
}

// ListStyled is List with the path column passed through style, e.g. to
// colorize it. A nil style leaves paths unchanged.
func (a *Archive) ListStyled(w io.Writer, style func(e Entry, name string) string) error {
	if len(a.entries) == 0 {
		_, err := io.WriteString(w, "Archive is empty\n")
		return err
	}
	if _, err := fmt.Fprintf(w, "total %d\n", len(a.entries)); err != nil {
		return err
	}
	for _, e := range a.entries {
		name := e.Path
		if style != nil {
			name = style(e, name)
		}
		line := fmt.Sprintf("%c%s %8d %s", TypeChar(e.Type), PermString(e), e.PayloadLen, name)
		if e.Type == TypeSymlink {
			line += " -> " + a.linkTarget(e)
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// linkTarget returns the target of a symlink entry for display.
func (a *Archive) linkTarget(e Entry) string {
	data, err := a.FileData(e)
	if err != nil || len(data) == 0 {
		return "<unavailable>"
	}
	defer a.ReleaseData(data)
	return string(data)
}

// TypeChar returns the ls-style type indicator for t.
func TypeChar(t EntryType) byte {
	switch t {
	case TypeDirectory:
		return 'd'
	case TypeSymlink:
		return 'l'
	default:
		return '.'
	}
}
