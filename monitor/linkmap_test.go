package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEntries(f *fakeDbg, head uint64) []LibEntry {
	var out []LibEntry
	it := NewLinkMapIter(f, head)
	for {
		ent, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, ent)
	}
}

func TestLinkMapTraversal(t *testing.T) {
	tests := []struct {
		name string
		libs []string
	}{
		{"empty", nil},
		{"single", []string{"/usr/lib/libc.so.6"}},
		{"several", []string{"/usr/lib/libc.so.6", "/usr/lib/libm.so.6", "/opt/app/libplugin.so"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeDbg()
			var head uint64
			for i := len(tt.libs) - 1; i >= 0; i-- {
				node := uint64(0x7ffff0000000 + i*0x10000)
				f.addLinkMapNode(node, uint64(i+1)*0x100000, tt.libs[i], head)
				head = node
			}

			got := collectEntries(f, head)
			require.Len(t, got, len(tt.libs))
			for i, lib := range tt.libs {
				assert.Equal(t, lib, got[i].Path)
				assert.Equal(t, uint64(i+1)*0x100000, got[i].Bias)
			}
		})
	}
}

func TestLinkMapCycleTerminates(t *testing.T) {
	f := newFakeDbg()
	f.addLinkMapNode(0x1000, 0x100000, "/usr/lib/liba.so", 0x2000)
	f.addLinkMapNode(0x2000, 0x200000, "/usr/lib/libb.so", 0x1000) // loops back

	got := collectEntries(f, 0x1000)
	require.Len(t, got, 2)
	assert.Equal(t, "/usr/lib/liba.so", got[0].Path)
	assert.Equal(t, "/usr/lib/libb.so", got[1].Path)
}

func TestLinkMapMalformedEntriesSkipped(t *testing.T) {
	f := newFakeDbg()
	// node1's name pointer dangles into unmapped memory.
	f.addLinkMapNode(0x1000, 0x100000, "", 0x2000)
	delete(f.strs, uint64(0x1000+0x1000))
	f.words[0x1000+linkMapNameOff] = 0xdeadbeef
	f.addLinkMapNode(0x2000, 0x200000, "/usr/lib/libok.so", 0)

	got := collectEntries(f, 0x1000)
	require.Len(t, got, 1)
	assert.Equal(t, "/usr/lib/libok.so", got[0].Path)
}

func TestLinkMapUnreadableForwardPointerStopsWalk(t *testing.T) {
	f := newFakeDbg()
	f.addLinkMapNode(0x1000, 0x100000, "/usr/lib/liba.so", 0x2000)
	// node at 0x2000 is entirely unmapped.

	got := collectEntries(f, 0x1000)
	require.Len(t, got, 1)
	assert.Equal(t, "/usr/lib/liba.so", got[0].Path)
}

func TestExtractPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`0x7ffff7ffe190 "/lib/x86_64-linux-gnu/libc.so.6"`, "/lib/x86_64-linux-gnu/libc.so.6"},
		{"/usr/lib/libm.so.6", "/usr/lib/libm.so.6"},
		{`  /usr/lib/libm.so.6  `, "/usr/lib/libm.so.6"},
		{`""`, ""},
		{`0x0 ""`, ""},
		{"", ""},
		{`"half`, ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractPath(tt.raw), "raw=%q", tt.raw)
	}
}

func TestVirtualObjectsExcluded(t *testing.T) {
	assert.True(t, isVirtualObject("linux-vdso.so.1"))
	assert.True(t, isVirtualObject("linux-gate.so.1"))
	assert.False(t, isVirtualObject("/usr/lib/libc.so.6"))
	// Only the exact synthetic names are virtual.
	assert.False(t, isVirtualObject("/usr/lib/linux-vdso.so.1.backup"))
}
