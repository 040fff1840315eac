package monitor

import (
	"path/filepath"
	"strings"
)

// isKnown reports whether the debugger already has symbols for a library
// with the given base file name. The debugger's view is queried fresh on
// every call rather than cached: its symbol machinery loads files on its
// own schedule, and a stale answer here either misses a load (harmful) or
// repeats one (idempotent, tolerable).
func isKnown(lister ObjectLister, baseName string) bool {
	for i, obj := range lister.ObjectFiles() {
		if i == 0 {
			// Primary executable.
			continue
		}
		if obj.Path == "" || strings.ContainsRune(obj.Path, ' ') {
			// Synthesized entries carry annotation text, not a path.
			continue
		}
		if filepath.Base(obj.Path) == baseName {
			return true
		}
	}
	return false
}
