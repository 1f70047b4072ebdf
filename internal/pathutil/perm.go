package pathutil

import "io/fs"

// Triad indices in a packed permission set.
const (
	Owner = 0
	Group = 1
	Other = 2
)

// PackPerm splits the rwx bits of mode into owner, group, and other triads.
// Special bits (setuid, setgid, sticky) are dropped.
func PackPerm(mode fs.FileMode) [3]uint8 {
	perm := uint32(mode.Perm())
	return [3]uint8{
		uint8(perm >> 6 & 0o7),
		uint8(perm >> 3 & 0o7),
		uint8(perm & 0o7),
	}
}

// UnpackPerm reassembles a permission mode from packed triads. Bits above
// the low three of each triad are ignored.
func UnpackPerm(p [3]uint8) fs.FileMode {
	return fs.FileMode(uint32(p[Owner]&0o7)<<6 | uint32(p[Group]&0o7)<<3 | uint32(p[Other]&0o7))
}

// FormatPerm renders packed triads in ls(1) style, e.g. "rwxr-x---".
func FormatPerm(p [3]uint8) string {
	var b [9]byte
	for i, t := range p {
		b[i*3] = flag(t&0o4 != 0, 'r')
		b[i*3+1] = flag(t&0o2 != 0, 'w')
		b[i*3+2] = flag(t&0o1 != 0, 'x')
	}
	return string(b[:])
}

func flag(set bool, c byte) byte {
	if set {
		return c
	}
	return '-'
}
