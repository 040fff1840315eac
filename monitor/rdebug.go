package monitor

import (
	"debug/elf"
	"errors"
	"fmt"
)

// glibc x86-64 layout.
//
//	struct r_debug { int r_version; struct link_map *r_map;
//	                 ElfW(Addr) r_brk; int r_state; ElfW(Addr) r_ldbase; };
//	struct link_map { ElfW(Addr) l_addr; char *l_name; ElfW(Dyn) *l_ld;
//	                  struct link_map *l_next, *l_prev; };
const (
	rDebugMapOff = 8
	rDebugBrkOff = 16

	linkMapAddrOff = 0
	linkMapNameOff = 8
	linkMapNextOff = 24
)

const (
	dtNull  = 0
	dtDebug = 21
)

// maxDynEntries bounds the .dynamic scan: a corrupt or half-initialized
// segment must not turn the scan into an endless read loop.
const maxDynEntries = 4096

var errNoDTDebug = errors.New("no DT_DEBUG entry in target .dynamic")

// RDebug is a snapshot of the dynamic linker's bookkeeping structure inside
// the target. The structure itself is owned and mutated by the target's
// runtime loader; this is a read-only copy taken while the target is stopped.
type RDebug struct {
	Addr uint64 // address of r_debug in the target
	Map  uint64 // head of the link_map list, 0 when empty
	Brk  uint64 // notification hook, 0 until the loader finishes bootstrap
}

// LocateRDebug finds the address of the target's r_debug structure by
// scanning the executable's .dynamic segment in target memory for DT_DEBUG.
// exeBias is the executable's load bias (0 for non-PIE binaries). The
// returned address may legitimately still hold a zeroed structure early in
// process startup.
func LocateRDebug(mem TargetMemory, exePath string, exeBias uint64) (uint64, error) {
	f, err := elf.Open(exePath)
	if err != nil {
		return 0, fmt.Errorf("open executable: %w", err)
	}
	defer f.Close()

	var dynVaddr uint64
	for _, prog := range f.Progs {
		if prog.Type == elf.PT_DYNAMIC {
			dynVaddr = prog.Vaddr
			break
		}
	}
	if dynVaddr == 0 {
		return 0, errors.New("executable has no PT_DYNAMIC segment")
	}

	// Elf64_Dyn is a (tag, value) pair of machine words.
	dyn := exeBias + dynVaddr
	for i := 0; i < maxDynEntries; i++ {
		tag, err := mem.ReadPointer(dyn + uint64(i)*16)
		if err != nil {
			return 0, fmt.Errorf("read .dynamic entry %d: %w", i, err)
		}
		if tag == dtNull {
			break
		}
		if tag != dtDebug {
			continue
		}
		val, err := mem.ReadPointer(dyn + uint64(i)*16 + 8)
		if err != nil {
			return 0, fmt.Errorf("read DT_DEBUG value: %w", err)
		}
		if val == 0 {
			// Slot exists but the loader has not filled it in yet.
			return 0, errNoDTDebug
		}
		return val, nil
	}
	return 0, errNoDTDebug
}

// ReadRDebug reads the live r_map and r_brk fields at addr.
func ReadRDebug(mem TargetMemory, addr uint64) (RDebug, error) {
	m, err := mem.ReadPointer(addr + rDebugMapOff)
	if err != nil {
		return RDebug{}, fmt.Errorf("read r_map: %w", err)
	}
	brk, err := mem.ReadPointer(addr + rDebugBrkOff)
	if err != nil {
		return RDebug{}, fmt.Errorf("read r_brk: %w", err)
	}
	return RDebug{Addr: addr, Map: m, Brk: brk}, nil
}
