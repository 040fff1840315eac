package main

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

// TypeBp is an int3 software breakpoint. A breakpoint may carry an onHit
// callback; such internal intercepts are serviced inside the wait loop and
// never surface to the user unless the callback asks to halt.
type TypeBp struct {
	dbg      *TypeDbg
	addr     uintptr
	instr    []byte
	isEnable bool
	onHit    func() bool
}

// NewBp plants a user breakpoint at bpAddr.
func (dbger *TypeDbg) NewBp(bpAddr uintptr) (*TypeBp, error) {
	bp, err := dbger.newBp(bpAddr, nil)
	if err != nil {
		return nil, err
	}
	Printf("breakpoint %d added at %x\n", len(dbger.bps)-1, bpAddr)
	return bp, nil
}

// InstallIntercept plants an internal breakpoint at addr bound to onHit.
// This is the intercept-registration primitive the solib monitor uses for
// the linker hook.
func (dbger *TypeDbg) InstallIntercept(addr uint64, onHit func() bool) error {
	if onHit == nil {
		return errors.New("intercept requires a callback")
	}
	_, err := dbger.newBp(uintptr(addr), onHit)
	return err
}

func (dbger *TypeDbg) newBp(bpAddr uintptr, onHit func() bool) (*TypeBp, error) {
	if dbger.findBp(bpAddr) != nil {
		return nil, errors.New("breakpoint already exists at this address")
	}

	bp := &TypeBp{
		dbg:   dbger,
		addr:  bpAddr,
		instr: make([]byte, 8),
		onHit: onHit,
	}
	if err := bp.enableBp(); err != nil {
		return nil, err
	}
	dbger.bps = append(dbger.bps, bp)
	return bp, nil
}

func (dbger *TypeDbg) findBp(addr uintptr) *TypeBp {
	for _, bp := range dbger.bps {
		if bp.addr == addr {
			return bp
		}
	}
	return nil
}

func (dbger *TypeDbg) EnableBp(idx int) error {
	if idx < 0 || idx >= len(dbger.bps) {
		return errors.New("invalid index")
	}
	if dbger.bps[idx].isEnable {
		return errors.New("already enabled")
	}
	if err := dbger.bps[idx].enableBp(); err != nil {
		return err
	}
	Printf("breakpoint %d enabled at %x\n", idx, dbger.bps[idx].addr)
	return nil
}

func (dbger *TypeDbg) DisableBp(idx int) error {
	if idx < 0 || idx >= len(dbger.bps) {
		return errors.New("invalid index")
	}
	if !dbger.bps[idx].isEnable {
		return errors.New("already disabled")
	}
	if err := dbger.bps[idx].disableBp(); err != nil {
		return err
	}
	Printf("breakpoint %d disabled at %x\n", idx, dbger.bps[idx].addr)
	return nil
}

func (bp *TypeBp) enableBp() error {
	rpc := bp.dbg.rpc
	pid := bp.dbg.pid

	return doSyscallErr(rpc, func() error {
		_, err := unix.PtracePeekData(pid, bp.addr, bp.instr)
		if err != nil {
			return err
		}
		origInstr := binary.LittleEndian.Uint64(bp.instr)
		int3Instr := (origInstr & ^uint64(0xff)) | 0xcc
		patched := make([]byte, 8)
		binary.LittleEndian.PutUint64(patched, int3Instr)
		if _, err = unix.PtracePokeData(pid, bp.addr, patched); err != nil {
			return err
		}
		bp.isEnable = true
		return nil
	})
}

func (bp *TypeBp) disableBp() error {
	rpc := bp.dbg.rpc
	pid := bp.dbg.pid

	return doSyscallErr(rpc, func() error {
		cur := make([]byte, 8)
		if _, err := unix.PtracePeekData(pid, bp.addr, cur); err != nil {
			return err
		}
		curInstr := binary.LittleEndian.Uint64(cur)
		origInstr := binary.LittleEndian.Uint64(bp.instr)
		restored := (curInstr & ^uint64(0xff)) | (origInstr & 0xff)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, restored)
		if _, err := unix.PtracePokeData(pid, bp.addr, buf); err != nil {
			return err
		}
		bp.isEnable = false
		return nil
	})
}
