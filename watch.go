package main

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

// x86-64 user area offsets of the debug registers.
const (
	userDR0Offset = 848
	userDR7Offset = 888
)

const (
	wpExec      = 0b00
	wpWrite     = 0b01
	wpReadWrite = 0b11
)

const (
	wpSize1 = 0b00
	wpSize2 = 0b01
	wpSize8 = 0b10
	wpSize4 = 0b11
)

type wpSlot struct {
	used bool
	addr uint64
}

func (dbger *TypeDbg) findEmptySlot() int {
	for i, s := range dbger.wps {
		if !s.used {
			return i
		}
	}
	return -1
}

func wpSizeBits(size uint64) (uint64, error) {
	switch size {
	case 1:
		return wpSize1, nil
	case 2:
		return wpSize2, nil
	case 4:
		return wpSize4, nil
	case 8:
		return wpSize8, nil
	}
	return 0, fmt.Errorf("unsupported watchpoint size %d", size)
}

func (dbger *TypeDbg) peekUser(off uintptr) (uint64, error) {
	return doSyscall(dbger.rpc, func() (uint64, error) {
		buf := make([]byte, 8)
		if _, err := unix.PtracePeekUser(dbger.pid, off, buf); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(buf), nil
	})
}

func (dbger *TypeDbg) pokeUser(off uintptr, val uint64) error {
	return doSyscallErr(dbger.rpc, func() error {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, val)
		_, err := unix.PtracePokeUser(dbger.pid, off, buf)
		return err
	})
}

// SetWatchpoint arms one of the four hardware debug registers to trap
// writes of the given size at wpAddr.
func (dbger *TypeDbg) SetWatchpoint(wpAddr uint64, size uint64) error {
	slot := dbger.findEmptySlot()
	if slot < 0 {
		return fmt.Errorf("all hardware watchpoint slots are in use")
	}
	sizeBits, err := wpSizeBits(size)
	if err != nil {
		return err
	}

	if err := dbger.pokeUser(uintptr(userDR0Offset+slot*8), wpAddr); err != nil {
		return fmt.Errorf("writing DR%d failed: %v", slot, err)
	}

	dr7, err := dbger.peekUser(userDR7Offset)
	if err != nil {
		return fmt.Errorf("reading DR7 failed: %v", err)
	}

	cShift := uint(16 + slot*4)
	sShift := uint(18 + slot*4)
	enableBit := uint64(1) << uint(slot*2)

	clearMask := ^(uint64(0xF)<<cShift | uint64(3)<<uint(slot*2))
	dr7 = (dr7 & clearMask) | enableBit | uint64(wpWrite)<<cShift | sizeBits<<sShift

	if err := dbger.pokeUser(userDR7Offset, dr7); err != nil {
		return fmt.Errorf("writing DR7 failed: %v", err)
	}

	dbger.wps[slot] = wpSlot{used: true, addr: wpAddr}
	Printf("watchpoint %d armed at 0x%016x (%d bytes)\n", slot, wpAddr, size)
	return nil
}

// ClearWatchpoint disarms a slot by index.
func (dbger *TypeDbg) ClearWatchpoint(slot int) error {
	if slot < 0 || slot >= len(dbger.wps) || !dbger.wps[slot].used {
		return fmt.Errorf("watchpoint slot %d is not in use", slot)
	}

	if err := dbger.pokeUser(uintptr(userDR0Offset+slot*8), 0); err != nil {
		return fmt.Errorf("clearing DR%d failed: %v", slot, err)
	}

	dr7, err := dbger.peekUser(userDR7Offset)
	if err != nil {
		return fmt.Errorf("reading DR7 failed: %v", err)
	}
	dr7 &= ^(uint64(3) << uint(slot*2))
	if err := dbger.pokeUser(userDR7Offset, dr7); err != nil {
		return fmt.Errorf("writing DR7 failed: %v", err)
	}

	dbger.wps[slot] = wpSlot{}
	Printf("watchpoint %d cleared\n", slot)
	return nil
}

func (dbger *TypeDbg) listWatchpoints() {
	any := false
	for i, s := range dbger.wps {
		if s.used {
			Printf("watchpoint %d @ 0x%016x\n", i, s.addr)
			any = true
		}
	}
	if !any {
		Printf("no watchpoints set\n")
	}
}
