package monitor

import (
	"path/filepath"
	"strings"
)

// LibEntry is one loaded shared object as reported by the dynamic linker.
type LibEntry struct {
	Path string
	Bias uint64 // l_addr, added to every address in the object's own headers
}

// LinkMapIter is a single-pass cursor over the target's link_map list. The
// list is owned by the target and only consistent at the moment the linker
// hook fires, so an iterator must never be reused across firings.
type LinkMapIter struct {
	mem  TargetMemory
	next uint64
	seen map[uint64]struct{}
}

// NewLinkMapIter starts a traversal at head, the r_map value read from
// r_debug. A zero head yields an empty traversal.
func NewLinkMapIter(mem TargetMemory, head uint64) *LinkMapIter {
	return &LinkMapIter{
		mem:  mem,
		next: head,
		seen: make(map[uint64]struct{}),
	}
}

// Next returns the next real shared object on the list. Entries with an
// empty path or naming the kernel's synthetic vDSO are skipped, as are
// entries whose name cannot be read. The traversal ends at a NULL l_next,
// on a relinked cycle, or when a forward pointer becomes unreadable.
func (it *LinkMapIter) Next() (LibEntry, bool) {
	for it.next != 0 {
		node := it.next
		if _, ok := it.seen[node]; ok {
			return LibEntry{}, false
		}
		it.seen[node] = struct{}{}

		next, err := it.mem.ReadPointer(node + linkMapNextOff)
		if err != nil {
			// Without l_next the rest of the list is unreachable.
			return LibEntry{}, false
		}
		it.next = next

		bias, err := it.mem.ReadPointer(node + linkMapAddrOff)
		if err != nil {
			continue
		}
		namePtr, err := it.mem.ReadPointer(node + linkMapNameOff)
		if err != nil || namePtr == 0 {
			continue
		}
		raw, err := it.mem.ReadCString(namePtr)
		if err != nil {
			continue
		}

		path := ExtractPath(raw)
		if path == "" || isVirtualObject(path) {
			continue
		}
		return LibEntry{Path: path, Bias: bias}, true
	}
	return LibEntry{}, false
}

// ExtractPath strips debugger-style rendering from an l_name value. A raw
// C string comes back unchanged; a rendered value such as
//
//	0x7ffff7ffe190 "/lib/x86_64-linux-gnu/libc.so.6"
//
// is reduced to the quoted path.
func ExtractPath(raw string) string {
	s := strings.TrimSpace(raw)
	i := strings.IndexByte(s, '"')
	if i < 0 {
		return s
	}
	j := strings.LastIndexByte(s, '"')
	if j <= i {
		return ""
	}
	return strings.TrimSpace(s[i+1 : j])
}

// isVirtualObject reports whether path names the kernel-provided virtual
// shared object, which has no backing file to read symbols from.
func isVirtualObject(path string) bool {
	switch filepath.Base(path) {
	case "linux-vdso.so.1", "linux-gate.so.1":
		return true
	}
	return false
}
