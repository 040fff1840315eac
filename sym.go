package main

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"solibMon/monitor"
)

// objFile is one object file with loaded symbols. Index 0 in TypeDbg.libs is
// always the primary executable.
type objFile struct {
	name string
	base uint64
}

type Symbol struct {
	Name string
	Addr uint64 // link-time address, relative to the owning object's base
	Size uint64
	Type elf.SymType
	Bind elf.SymBind
	Lib  int // index into TypeDbg.libs
}

type SymbolTable struct {
	symbols []Symbol
	byName  map[string][]int
	dedup   map[string]int

	// sortedAbs caches symbol indices ordered by absolute address; rebuilt
	// after base relocation or new loads.
	sortedAbs []int
	dirty     bool
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		byName: make(map[string][]int),
		dedup:  make(map[string]int),
	}
}

func (st *SymbolTable) add(sym Symbol) {
	key := fmt.Sprintf("%x_%s_%d", sym.Addr, sym.Name, sym.Lib)
	if idx, exists := st.dedup[key]; exists {
		existing := &st.symbols[idx]
		// Prefer the bigger definition, then global over weak.
		if sym.Size > existing.Size ||
			(sym.Size == existing.Size && sym.Bind == elf.STB_GLOBAL && existing.Bind == elf.STB_WEAK) {
			st.symbols[idx] = sym
			st.dirty = true
		}
		return
	}

	st.symbols = append(st.symbols, sym)
	idx := len(st.symbols) - 1
	st.dedup[key] = idx
	st.byName[sym.Name] = append(st.byName[sym.Name], idx)
	st.dirty = true
}

// abs is a symbol's absolute in-target address.
func (dbger *TypeDbg) symAbs(sym *Symbol) uint64 {
	if sym.Lib < len(dbger.libs) {
		return sym.Addr + dbger.libs[sym.Lib].base
	}
	return sym.Addr
}

func (dbger *TypeDbg) sortedSymbols() []int {
	st := dbger.syms
	if !st.dirty && st.sortedAbs != nil {
		return st.sortedAbs
	}

	st.sortedAbs = st.sortedAbs[:0]
	for i := range st.symbols {
		st.sortedAbs = append(st.sortedAbs, i)
	}
	sort.Slice(st.sortedAbs, func(a, b int) bool {
		return dbger.symAbs(&st.symbols[st.sortedAbs[a]]) < dbger.symAbs(&st.symbols[st.sortedAbs[b]])
	})
	st.dirty = false
	return st.sortedAbs
}

// ldd enumerates the executable's NEEDED dependencies for the initial load.
// Libraries pulled in later via dlopen are the solib monitor's job.
func (dbger *TypeDbg) ldd() ([]string, error) {
	out, err := exec.Command("ldd", dbger.path).Output()
	if err != nil {
		return nil, err
	}

	var libs []string
	fields := strings.Fields(string(out))
	for i, f := range fields {
		if !strings.HasPrefix(f, "(") || i == 0 {
			continue
		}
		cand := fields[i-1]
		if !strings.Contains(cand, "/") {
			continue
		}
		resolved, err := filepath.EvalSymlinks(cand)
		if err != nil {
			cand, _ = filepath.Abs(cand)
		} else {
			cand, _ = filepath.Abs(resolved)
		}
		libs = append(libs, cand)
	}
	return libs, nil
}

func (dbger *TypeDbg) isPIE() (bool, error) {
	file, err := elf.Open(dbger.path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	return file.Type == elf.ET_DYN, nil
}

// getBaseAddress finds the lowest mapping of libPath in /proc/PID/maps.
func (dbger *TypeDbg) getBaseAddress(libPath string) (uint64, error) {
	for _, m := range dbger.maps {
		if m.path == libPath {
			return m.start, nil
		}
	}
	// Symlinked paths may differ from the mapped name.
	base := filepath.Base(libPath)
	for _, m := range dbger.maps {
		if filepath.Base(m.path) == base {
			return m.start, nil
		}
	}
	return 0, errors.New("base address not found")
}

// LoadInitialSymbols populates the symbol table from the executable and its
// ldd-visible dependencies, then fires the first object-file notification.
func (dbger *TypeDbg) LoadInitialSymbols() error {
	if dbger.path == "" {
		return errors.New("invalid filename")
	}

	dbger.syms = NewSymbolTable()
	dbger.libs = []objFile{{name: dbger.path}}

	if err := dbger.loadSymbolsFromFile(dbger.path, 0); err != nil {
		return fmt.Errorf("failed to load main symbols: %v", err)
	}

	libs, err := dbger.ldd()
	if err != nil {
		Printf("Warning: failed to get shared libraries: %v\n", err)
	} else {
		for _, lib := range libs {
			dbger.libs = append(dbger.libs, objFile{name: lib})
			if err := dbger.loadSymbolsFromFile(lib, len(dbger.libs)-1); err != nil {
				Printf("Warning: failed to load symbols from %s: %v\n", lib, err)
			}
		}
	}

	Printf("Loaded %d symbols from %d libraries\n", len(dbger.syms.symbols), len(dbger.libs))
	dbger.notifyObjFile()

	return nil
}

func (dbger *TypeDbg) loadSymbolsFromFile(filename string, lib int) error {
	file, err := elf.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	loaded := 0
	for _, src := range []func() ([]elf.Symbol, error){file.Symbols, file.DynamicSymbols} {
		symbols, err := src()
		if err != nil {
			continue
		}
		loaded++
		for _, sym := range symbols {
			if sym.Name == "" {
				continue
			}
			symType := elf.SymType(sym.Info & 0xf)
			if symType == elf.STT_FILE || symType == elf.STT_SECTION {
				continue
			}
			if sym.Value == 0 && symType != elf.STT_FUNC && symType != elf.STT_OBJECT {
				continue
			}

			dbger.syms.add(Symbol{
				Name: sym.Name,
				Addr: sym.Value,
				Size: sym.Size,
				Type: symType,
				Bind: elf.SymBind(sym.Info >> 4),
				Lib:  lib,
			})
		}
	}
	if loaded == 0 {
		return errors.New("no symbol tables in file")
	}
	return nil
}

// AddSymbolFile is the symbol-ingestion primitive: load symbols from path as
// if its .text section were mapped at textAddr, the way gdb's
// add-symbol-file does. The library base is recovered by subtracting the
// section's link-time address.
func (dbger *TypeDbg) AddSymbolFile(path string, textAddr uint64) error {
	for i, lib := range dbger.libs {
		if i == 0 {
			continue
		}
		if filepath.Base(lib.name) == filepath.Base(path) {
			return fmt.Errorf("object file %s already registered", filepath.Base(path))
		}
	}

	file, err := elf.Open(path)
	if err != nil {
		return err
	}
	textSec := file.Section(".text")
	if textSec == nil {
		file.Close()
		return fmt.Errorf("%s has no .text section", path)
	}
	textVMA := textSec.Addr
	file.Close()

	if textAddr < textVMA {
		return fmt.Errorf("text address 0x%x below link-time address 0x%x", textAddr, textVMA)
	}

	dbger.libs = append(dbger.libs, objFile{name: path, base: textAddr - textVMA})
	if err := dbger.loadSymbolsFromFile(path, len(dbger.libs)-1); err != nil {
		dbger.libs = dbger.libs[:len(dbger.libs)-1]
		return err
	}

	Printf("added symbols from %s (.text @ 0x%016x)\n", path, textAddr)
	dbger.notifyObjFile()
	return nil
}

// ObjectFiles is the known-object-file listing primitive. Index 0 is the
// primary executable.
func (dbger *TypeDbg) ObjectFiles() []monitor.ObjectFile {
	out := make([]monitor.ObjectFile, 0, len(dbger.libs))
	for _, lib := range dbger.libs {
		out = append(out, monitor.ObjectFile{Path: lib.name, Base: lib.base})
	}
	return out
}

// Reload re-resolves every object file's base address from /proc/PID/maps.
// Called once the target is actually mapped (bases are unknown before run).
func (dbger *TypeDbg) Reload() error {
	if len(dbger.libs) == 0 {
		return errors.New("no libraries loaded")
	}
	if err := dbger.loadBase(); err != nil {
		return err
	}

	isPie, err := dbger.isPIE()
	if err != nil {
		return err
	}

	if isPie {
		if baseAddr, err := dbger.getBaseAddress(dbger.libs[0].name); err == nil {
			dbger.libs[0].base = baseAddr
		}
	}

	for i := 1; i < len(dbger.libs); i++ {
		if baseAddr, err := dbger.getBaseAddress(dbger.libs[i].name); err == nil {
			dbger.libs[i].base = baseAddr
		}
	}

	dbger.syms.dirty = true
	return nil
}

// ExeBias is the primary executable's load bias (0 for non-PIE).
func (dbger *TypeDbg) ExeBias() uint64 {
	if len(dbger.libs) == 0 {
		return 0
	}
	return dbger.libs[0].base
}

// ResolveAddrToSymbol maps an absolute address to the nearest symbol at or
// below it, returning the offset into that symbol.
func (dbger *TypeDbg) ResolveAddrToSymbol(addr uint64) (*Symbol, uint64, error) {
	order := dbger.sortedSymbols()
	if len(order) == 0 {
		return nil, 0, errors.New("symbols not loaded")
	}

	i := sort.Search(len(order), func(i int) bool {
		return dbger.symAbs(&dbger.syms.symbols[order[i]]) > addr
	})
	for i--; i >= 0; i-- {
		sym := &dbger.syms.symbols[order[i]]
		off := addr - dbger.symAbs(sym)
		if sym.Size > 0 && off >= sym.Size {
			continue
		}
		return sym, off, nil
	}
	return nil, 0, errors.New("symbol not found")
}

// ResolveSymbolToAddr finds a symbol by name. Exact matches win; otherwise
// substring matches are offered, interactively when several qualify.
func (dbger *TypeDbg) ResolveSymbolToAddr(name string) (*Symbol, error) {
	if idxs, ok := dbger.syms.byName[name]; ok && len(idxs) > 0 {
		return &dbger.syms.symbols[idxs[0]], nil
	}

	var matches []*Symbol
	lower := strings.ToLower(name)
	for symName, idxs := range dbger.syms.byName {
		if strings.Contains(strings.ToLower(symName), lower) {
			for _, i := range idxs {
				matches = append(matches, &dbger.syms.symbols[i])
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("symbol '%s' not found", name)
	case 1:
		return matches[0], nil
	}

	return dbger.pickSymbol(name, matches)
}

// pickSymbol lets the user choose between ambiguous matches. Outside a
// terminal the first match is used, as before.
func (dbger *TypeDbg) pickSymbol(name string, matches []*Symbol) (*Symbol, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return matches[0], nil
	}

	if len(matches) > 32 {
		matches = matches[:32]
	}

	items := make([]string, len(matches))
	for i, sym := range matches {
		lib := "unknown"
		if sym.Lib < len(dbger.libs) {
			lib = filepath.Base(dbger.libs[sym.Lib].name)
		}
		items[i] = fmt.Sprintf("%s @ 0x%x (%s)", sym.Name, dbger.symAbs(sym), lib)
	}

	prompt := promptui.Select{
		Label: fmt.Sprintf("Multiple symbols match '%s'", name),
		Items: items,
		Size:  10,
	}
	i, _, err := prompt.Run()
	if err != nil {
		return matches[0], nil
	}
	return matches[i], nil
}

func (dbger *TypeDbg) ListSymbols(filter string) error {
	order := dbger.sortedSymbols()
	if len(order) == 0 {
		return errors.New("symbols not loaded")
	}

	Printf("%-18s %-8s %-8s %-30s %s\n", "ADDRESS", "TYPE", "BIND", "LIBRARY", "NAME")
	Printf("%s\n", strings.Repeat("-", 100))

	count := 0
	lower := strings.ToLower(filter)
	for _, i := range order {
		sym := &dbger.syms.symbols[i]
		if filter != "" && !strings.Contains(strings.ToLower(sym.Name), lower) {
			continue
		}
		lib := "unknown"
		if sym.Lib < len(dbger.libs) {
			lib = filepath.Base(dbger.libs[sym.Lib].name)
		}
		Printf("0x%016x  %-8s %-8s %-30s %s\n",
			dbger.symAbs(sym), symbolTypeString(sym.Type), symbolBindString(sym.Bind), lib, sym.Name)
		count++
	}

	if count == 0 {
		Printf("No symbols found matching '%s'\n", filter)
	}
	return nil
}

func (dbger *TypeDbg) resolveSyms(addr uint64) {
	sym, offset, err := dbger.ResolveAddrToSymbol(addr)
	if err != nil {
		Printf("0x%016x: <no symbol>\n", addr)
		return
	}

	lib := ""
	if sym.Lib < len(dbger.libs) {
		lib = fmt.Sprintf(" [%s]", filepath.Base(dbger.libs[sym.Lib].name))
	}

	if offset == 0 {
		Printf("0x%016x: %s%s\n", addr, sym.Name, lib)
	} else {
		Printf("0x%016x: %s+0x%x%s\n", addr, sym.Name, offset, lib)
	}
}

func symbolTypeString(t elf.SymType) string {
	switch t {
	case elf.STT_NOTYPE:
		return "NOTYPE"
	case elf.STT_OBJECT:
		return "OBJECT"
	case elf.STT_FUNC:
		return "FUNC"
	case elf.STT_SECTION:
		return "SECTION"
	case elf.STT_FILE:
		return "FILE"
	case elf.STT_COMMON:
		return "COMMON"
	case elf.STT_TLS:
		return "TLS"
	default:
		return "UNKNOWN"
	}
}

func symbolBindString(b elf.SymBind) string {
	switch b {
	case elf.STB_LOCAL:
		return "LOCAL"
	case elf.STB_GLOBAL:
		return "GLOBAL"
	case elf.STB_WEAK:
		return "WEAK"
	default:
		return "UNKNOWN"
	}
}
