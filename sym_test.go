package main

import (
	"debug/elf"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solibMon/monitor"
)

func testDbg(t *testing.T) *TypeDbg {
	t.Helper()
	dbger := newDbg(zerolog.Nop())
	dbger.path = "/bin/target"
	dbger.libs = []objFile{{name: dbger.path}}
	t.Cleanup(func() { dbger.rpc.closeSyscall() })
	return dbger
}

func TestSymbolTableDedup(t *testing.T) {
	st := NewSymbolTable()
	st.add(Symbol{Name: "foo", Addr: 0x100, Size: 4, Bind: elf.STB_WEAK, Lib: 1})
	st.add(Symbol{Name: "foo", Addr: 0x100, Size: 4, Bind: elf.STB_GLOBAL, Lib: 1})
	require.Len(t, st.symbols, 1)
	assert.Equal(t, elf.STB_GLOBAL, st.symbols[0].Bind, "global beats weak at equal size")

	st.add(Symbol{Name: "foo", Addr: 0x100, Size: 16, Bind: elf.STB_WEAK, Lib: 1})
	require.Len(t, st.symbols, 1)
	assert.Equal(t, uint64(16), st.symbols[0].Size, "bigger definition wins")

	// Same name in a different object is a distinct symbol.
	st.add(Symbol{Name: "foo", Addr: 0x100, Size: 4, Bind: elf.STB_GLOBAL, Lib: 2})
	assert.Len(t, st.symbols, 2)
}

func TestAddSymbolFile(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	textVMA, ok := monitor.TextSectionAddr(exe)
	require.True(t, ok)

	dbger := testDbg(t)
	const bias = 0x7f0000000000

	require.NoError(t, dbger.AddSymbolFile(exe, bias+textVMA))
	require.Len(t, dbger.libs, 2)
	assert.Equal(t, uint64(bias), dbger.libs[1].base, "base recovered from .text placement")
	assert.NotEmpty(t, dbger.syms.symbols)

	// Re-ingesting the same base name is rejected, leaving state untouched.
	err = dbger.AddSymbolFile(exe, bias+textVMA)
	assert.Error(t, err)
	assert.Len(t, dbger.libs, 2)
}

func TestAddSymbolFileBelowLinkAddress(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	textVMA, ok := monitor.TextSectionAddr(exe)
	require.True(t, ok)
	if textVMA == 0 {
		t.Skip("test binary links .text at zero")
	}

	dbger := testDbg(t)
	err = dbger.AddSymbolFile(exe, textVMA-1)
	assert.Error(t, err)
	assert.Len(t, dbger.libs, 1)
}

func TestObjectFilesOrdering(t *testing.T) {
	dbger := testDbg(t)
	dbger.libs = append(dbger.libs, objFile{name: "/usr/lib/libc.so.6", base: 0x7ffff7c00000})

	objs := dbger.ObjectFiles()
	require.Len(t, objs, 2)
	assert.Equal(t, "/bin/target", objs[0].Path, "primary executable stays at index 0")
	assert.Equal(t, monitor.ObjectFile{Path: "/usr/lib/libc.so.6", Base: 0x7ffff7c00000}, objs[1])
}

func TestObjFileObserversFire(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	textVMA, ok := monitor.TextSectionAddr(exe)
	require.True(t, ok)

	dbger := testDbg(t)
	fired := 0
	dbger.OnNewObjFile(func() { fired++ })

	require.NoError(t, dbger.AddSymbolFile(exe, 0x7f0000000000+textVMA))
	assert.Equal(t, 1, fired)
}

func TestResolveAddrToSymbol(t *testing.T) {
	dbger := testDbg(t)
	dbger.libs = append(dbger.libs, objFile{name: "/usr/lib/libx.so", base: 0x1000000})
	dbger.syms.add(Symbol{Name: "alpha", Addr: 0x100, Size: 0x20, Type: elf.STT_FUNC, Lib: 1})
	dbger.syms.add(Symbol{Name: "beta", Addr: 0x200, Size: 0x10, Type: elf.STT_FUNC, Lib: 1})

	sym, off, err := dbger.ResolveAddrToSymbol(0x1000108)
	require.NoError(t, err)
	assert.Equal(t, "alpha", sym.Name)
	assert.Equal(t, uint64(8), off)

	// Past alpha's extent but before beta: no containing symbol.
	_, _, err = dbger.ResolveAddrToSymbol(0x1000150)
	assert.Error(t, err)

	sym, off, err = dbger.ResolveAddrToSymbol(0x1000200)
	require.NoError(t, err)
	assert.Equal(t, "beta", sym.Name)
	assert.Equal(t, uint64(0), off)
}

func TestResolveSymbolToAddr(t *testing.T) {
	dbger := testDbg(t)
	dbger.libs = append(dbger.libs, objFile{name: "/usr/lib/libx.so", base: 0x1000000})
	dbger.syms.add(Symbol{Name: "frobnicate", Addr: 0x100, Size: 0x20, Lib: 1})

	sym, err := dbger.ResolveSymbolToAddr("frobnicate")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1000100), dbger.symAbs(sym))

	// Substring match with a single candidate resolves without prompting.
	sym, err = dbger.ResolveSymbolToAddr("frobni")
	require.NoError(t, err)
	assert.Equal(t, "frobnicate", sym.Name)

	_, err = dbger.ResolveSymbolToAddr("nosuchsymbol")
	assert.Error(t, err)
}
