package main

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// x86-64 instructions never exceed 15 bytes.
const maxInsnLen = 15

// readCode fetches target memory with enabled breakpoint trap bytes patched
// back to the original instruction bytes.
func (dbger *TypeDbg) readCode(addr uint64, n uint) ([]byte, error) {
	code, err := dbger.GetMemory(n, uintptr(addr))
	if err != nil {
		return nil, err
	}
	for _, bp := range dbger.bps {
		if !bp.isEnable {
			continue
		}
		off := uint64(bp.addr) - addr
		if uint64(bp.addr) >= addr && off < uint64(len(code)) {
			code[off] = bp.instr[0]
		}
	}
	return code, nil
}

// disass prints count instructions starting at addr.
func (dbger *TypeDbg) disass(addr uint64, count int) error {
	code, err := dbger.readCode(addr, uint(count*maxInsnLen))
	if err != nil {
		return fmt.Errorf("error reading memory at 0x%016x: %v", addr, err)
	}

	pc := addr
	off := 0
	for i := 0; i < count && off < len(code); i++ {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			Printf("0x%016x: (bad)\n", pc)
			off++
			pc++
			continue
		}
		Printf("0x%016x: %s\n", pc, x86asm.GNUSyntax(inst, pc, nil))
		off += inst.Len
		pc += uint64(inst.Len)
	}
	return nil
}

// DisassOne decodes the single instruction at addr.
func (dbger *TypeDbg) DisassOne(addr uintptr) (*string, error) {
	code, err := dbger.readCode(uint64(addr), maxInsnLen)
	if err != nil {
		return nil, err
	}

	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return nil, errors.New("failed to disassemble instruction")
	}
	s := x86asm.GNUSyntax(inst, uint64(addr), nil)
	return &s, nil
}
