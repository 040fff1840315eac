package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateRDebug(t *testing.T) {
	const (
		bias     = 0x555555554000
		dynVaddr = 0x3000
		rdebug   = 0x7ffff7ffd000
	)

	f := newFakeDbg()
	exe := f.setDynamic(t, bias, dynVaddr, rdebug)

	addr, err := LocateRDebug(f, exe, bias)
	require.NoError(t, err)
	assert.Equal(t, uint64(rdebug), addr)
}

func TestLocateRDebugUnfilledSlot(t *testing.T) {
	const (
		bias     = 0x555555554000
		dynVaddr = 0x3000
	)

	f := newFakeDbg()
	// DT_DEBUG present but the loader has not written its value yet.
	exe := f.setDynamic(t, bias, dynVaddr, 0)

	_, err := LocateRDebug(f, exe, bias)
	assert.ErrorIs(t, err, errNoDTDebug)
}

func TestLocateRDebugNoDTDebug(t *testing.T) {
	const (
		bias     = 0x555555554000
		dynVaddr = 0x3000
	)

	f := newFakeDbg()
	exe := writeFakeExe(t, dynVaddr)
	dyn := uint64(bias + dynVaddr)
	f.words[dyn] = 5 // DT_STRTAB
	f.words[dyn+8] = 0xdead
	f.words[dyn+16] = dtNull
	f.words[dyn+24] = 0

	_, err := LocateRDebug(f, exe, bias)
	assert.ErrorIs(t, err, errNoDTDebug)
}

func TestLocateRDebugUnreadableDynamic(t *testing.T) {
	const (
		bias     = 0x555555554000
		dynVaddr = 0x3000
	)

	f := newFakeDbg()
	exe := writeFakeExe(t, dynVaddr)
	// Nothing mapped at the .dynamic address at all.

	_, err := LocateRDebug(f, exe, bias)
	assert.Error(t, err)
}

func TestLocateRDebugMissingExecutable(t *testing.T) {
	f := newFakeDbg()
	_, err := LocateRDebug(f, "/nonexistent/binary", 0)
	assert.Error(t, err)
}

func TestLocateRDebugRunawayDynamicBounded(t *testing.T) {
	const (
		bias     = 0x555555554000
		dynVaddr = 0x3000
	)

	f := newFakeDbg()
	exe := writeFakeExe(t, dynVaddr)
	// A corrupt segment with no DT_NULL terminator: every slot readable,
	// none terminal.
	dyn := uint64(bias + dynVaddr)
	for i := uint64(0); i < maxDynEntries+16; i++ {
		f.words[dyn+i*16] = 5
		f.words[dyn+i*16+8] = 0xdead
	}

	_, err := LocateRDebug(f, exe, bias)
	assert.ErrorIs(t, err, errNoDTDebug)
}

func TestReadRDebug(t *testing.T) {
	const rdebug = 0x7ffff7ffd000

	f := newFakeDbg()
	f.setRDebug(rdebug, 0x7ffff7fbd000, 0x7ffff7fe2000)

	rd, err := ReadRDebug(f, rdebug)
	require.NoError(t, err)
	assert.Equal(t, uint64(rdebug), rd.Addr)
	assert.Equal(t, uint64(0x7ffff7fbd000), rd.Map)
	assert.Equal(t, uint64(0x7ffff7fe2000), rd.Brk)

	_, err = ReadRDebug(f, 0x1234)
	assert.Error(t, err)
}
