package main

import (
	"errors"
	"strings"

	"golang.org/x/sys/unix"
)

func (dbger *TypeDbg) getRegs() (*unix.PtraceRegs, error) {
	return doSyscall(dbger.rpc, func() (*unix.PtraceRegs, error) {
		regs := &unix.PtraceRegs{}
		if err := unix.PtraceGetRegs(dbger.pid, regs); err != nil {
			return nil, err
		}
		return regs, nil
	})
}

func (dbger *TypeDbg) setRegs(regs *unix.PtraceRegs) error {
	return doSyscallErr(dbger.rpc, func() error {
		return unix.PtraceSetRegs(dbger.pid, regs)
	})
}

func (dbger *TypeDbg) GetRip() (uint64, error) {
	regs, err := dbger.getRegs()
	if err != nil {
		return 0, err
	}
	return regs.Rip, nil
}

func (dbger *TypeDbg) SetRip(rip uint64) error {
	regs, err := dbger.getRegs()
	if err != nil {
		return err
	}
	regs.Rip = rip
	return dbger.setRegs(regs)
}

func (dbger *TypeDbg) GetRegs(regName string) (uint64, error) {
	regs, err := dbger.getRegs()
	if err != nil {
		return 0, err
	}

	switch strings.ToUpper(regName) {
	case "R15":
		return regs.R15, nil
	case "R14":
		return regs.R14, nil
	case "R13":
		return regs.R13, nil
	case "R12":
		return regs.R12, nil
	case "RBP":
		return regs.Rbp, nil
	case "RBX":
		return regs.Rbx, nil
	case "R11":
		return regs.R11, nil
	case "R10":
		return regs.R10, nil
	case "R9":
		return regs.R9, nil
	case "R8":
		return regs.R8, nil
	case "RAX":
		return regs.Rax, nil
	case "RCX":
		return regs.Rcx, nil
	case "RDX":
		return regs.Rdx, nil
	case "RSI":
		return regs.Rsi, nil
	case "RDI":
		return regs.Rdi, nil
	case "ORIG_RAX":
		return regs.Orig_rax, nil
	case "RIP":
		return regs.Rip, nil
	case "CS":
		return regs.Cs, nil
	case "EFLAGS":
		return regs.Eflags, nil
	case "RSP":
		return regs.Rsp, nil
	case "SS":
		return regs.Ss, nil
	case "FS_BASE":
		return regs.Fs_base, nil
	case "GS_BASE":
		return regs.Gs_base, nil
	case "DS":
		return regs.Ds, nil
	case "ES":
		return regs.Es, nil
	case "FS":
		return regs.Fs, nil
	case "GS":
		return regs.Gs, nil
	default:
		return 0, errors.New("invalid register")
	}
}

func (dbger *TypeDbg) SetRegs(regName string, val uint64) error {
	regs, err := dbger.getRegs()
	if err != nil {
		return err
	}

	switch strings.ToUpper(regName) {
	case "R15":
		regs.R15 = val
	case "R14":
		regs.R14 = val
	case "R13":
		regs.R13 = val
	case "R12":
		regs.R12 = val
	case "RBP":
		regs.Rbp = val
	case "RBX":
		regs.Rbx = val
	case "R11":
		regs.R11 = val
	case "R10":
		regs.R10 = val
	case "R9":
		regs.R9 = val
	case "R8":
		regs.R8 = val
	case "RAX":
		regs.Rax = val
	case "RCX":
		regs.Rcx = val
	case "RDX":
		regs.Rdx = val
	case "RSI":
		regs.Rsi = val
	case "RDI":
		regs.Rdi = val
	case "ORIG_RAX":
		regs.Orig_rax = val
	case "RIP":
		regs.Rip = val
	case "CS":
		regs.Cs = val
	case "EFLAGS":
		regs.Eflags = val
	case "RSP":
		regs.Rsp = val
	case "SS":
		regs.Ss = val
	case "FS_BASE":
		regs.Fs_base = val
	case "GS_BASE":
		regs.Gs_base = val
	case "DS":
		regs.Ds = val
	case "ES":
		regs.Es = val
	case "FS":
		regs.Fs = val
	case "GS":
		regs.Gs = val
	default:
		return errors.New("invalid register")
	}

	return dbger.setRegs(regs)
}

var gpRegNames = []string{
	"RAX", "RBX", "RCX", "RDX", "RSI", "RDI", "RBP", "RSP",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
	"RIP", "EFLAGS",
}

func (dbger *TypeDbg) dumpRegs() error {
	regs, err := dbger.getRegs()
	if err != nil {
		return err
	}

	vals := map[string]uint64{
		"RAX": regs.Rax, "RBX": regs.Rbx, "RCX": regs.Rcx, "RDX": regs.Rdx,
		"RSI": regs.Rsi, "RDI": regs.Rdi, "RBP": regs.Rbp, "RSP": regs.Rsp,
		"R8": regs.R8, "R9": regs.R9, "R10": regs.R10, "R11": regs.R11,
		"R12": regs.R12, "R13": regs.R13, "R14": regs.R14, "R15": regs.R15,
		"RIP": regs.Rip, "EFLAGS": regs.Eflags,
	}
	for _, name := range gpRegNames {
		Printf("%-8s 0x%016x\n", name, vals[name])
	}
	return nil
}
