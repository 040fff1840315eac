package monitor

import "debug/elf"

// TextSectionAddr returns the unlinked virtual address of the object file's
// .text section. ok is false when the file cannot be opened, is not a valid
// ELF, or carries no .text section; all three are legitimate nothing-to-do
// outcomes, never errors.
func TextSectionAddr(path string) (addr uint64, ok bool) {
	f, err := elf.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sec := f.Section(".text")
	if sec == nil {
		return 0, false
	}
	return sec.Addr, true
}
