package main

import (
	"bufio"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"solibMon/monitor"
)

type TypeDbg struct {
	pid      int
	path     string
	isAttach bool
	rip      uint64
	isStart  bool
	arch     int
	rpc      *doSysRPC

	bps   []*TypeBp
	wps   [4]wpSlot
	libs  []objFile
	syms  *SymbolTable
	maps  []*procMap
	solib *monitor.Session

	// observers run whenever the debugger's object-file view may have
	// changed: after the initial symbol load, after every ingestion, and on
	// each stop. Callbacks run while the target is stopped.
	observers []func()

	logger zerolog.Logger
}

type procMap struct {
	start  uint64
	end    uint64
	rwx    string
	offset uint64
	path   string
}

var mapsLineRgx = regexp.MustCompile(
	`^([0-9a-f]+)-([0-9a-f]+)\s+([rwxps-]+)\s+([0-9a-f]+)\s+([0-9a-f]+:[0-9a-f]+)\s+(\d+)(?:\s+(.*))?$`)

func newDbg(logger zerolog.Logger) *TypeDbg {
	return &TypeDbg{
		arch:   64,
		rpc:    doSyscallWorker(),
		syms:   NewSymbolTable(),
		logger: logger.With().Str("component", "dbg").Logger(),
	}
}

// OnNewObjFile registers a new-object-file observer.
func (dbger *TypeDbg) OnNewObjFile(fn func()) {
	dbger.observers = append(dbger.observers, fn)
}

func (dbger *TypeDbg) notifyObjFile() {
	for _, fn := range dbger.observers {
		fn()
	}
}

func (dbger *TypeDbg) isProcessAlive() bool {
	if dbger.pid <= 0 {
		return false
	}
	_, err := os.Stat(fmt.Sprintf("/proc/%d", dbger.pid))
	return err == nil
}

func (dbger *TypeDbg) isStopped() bool {
	if !dbger.isProcessAlive() {
		return false
	}

	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", dbger.pid))
	if err != nil {
		return false
	}

	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return false
	}

	state := fields[2]
	return state == "t" || state == "T"
}

func (dbger *TypeDbg) isProcessTraced() bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/status", dbger.pid))
	if err != nil {
		return false
	}

	return !strings.Contains(string(data), "TracerPid:\t0")
}

func (dbger *TypeDbg) loadBase() error {
	dbger.maps = dbger.maps[:0]

	file, err := os.Open(fmt.Sprintf("/proc/%d/maps", dbger.pid))
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		match := mapsLineRgx.FindStringSubmatch(scanner.Text())
		if len(match) < 7 {
			continue
		}
		startAddr, _ := strconv.ParseUint(match[1], 16, 64)
		endAddr, _ := strconv.ParseUint(match[2], 16, 64)
		offset, _ := strconv.ParseUint(match[4], 16, 64)
		pathname := ""
		if len(match) > 7 && match[7] != "" {
			pathname = strings.TrimSpace(match[7])
		}

		dbger.maps = append(dbger.maps, &procMap{
			start:  startAddr,
			end:    endAddr,
			rwx:    match[3],
			offset: offset,
			path:   pathname,
		})
	}

	return scanner.Err()
}

func resolveBinPath(bin string) (string, error) {
	absPath := bin
	if strings.HasPrefix(bin, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		absPath = filepath.Join(home, bin[1:])
	} else if strings.HasPrefix(bin, "./") || !strings.HasPrefix(bin, "/") {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		absPath = filepath.Join(cwd, bin)
	}

	return filepath.Abs(absPath)
}

// Run spawns bin under ptrace and leaves it stopped at its entry point. The
// dynamic linker has not run at that moment, so r_debug.r_brk is still zero
// and the solib monitor arms itself on a later notification.
func Run(logger zerolog.Logger, bin string, args ...string) (*TypeDbg, error) {
	absPath, err := resolveBinPath(bin)
	if err != nil {
		return nil, err
	}

	f, err := elf.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var arch int
	switch f.Class {
	case elf.ELFCLASS32:
		arch = 32
	case elf.ELFCLASS64:
		arch = 64
	default:
		return nil, errors.New("unknown ELF class")
	}

	dbger := newDbg(logger)
	dbger.path = absPath
	dbger.isStart = true
	dbger.arch = arch
	dbger.pid = -1

	err = doSyscallErr(dbger.rpc, func() error {
		cmd := exec.Command(absPath, args...)
		cmd.SysProcAttr = &unix.SysProcAttr{
			Ptrace: true,
		}
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			return err
		}
		dbger.pid = cmd.Process.Pid
		return nil
	})
	if err != nil {
		return nil, err
	}
	Printf("%s started with PID:%d\n", absPath, dbger.pid)

	// The child stops with SIGTRAP on its first exec.
	if _, err = dbger.rawWait(); err != nil {
		return nil, err
	}

	dbger.rip, err = dbger.GetRip()
	if err != nil {
		return nil, err
	}

	if err := dbger.loadBase(); err != nil {
		return nil, err
	}

	return dbger, nil
}

// Attach takes over an already running process. By attach time the dynamic
// linker has long finished bootstrapping, so the first notification normally
// arms the solib monitor immediately.
func Attach(logger zerolog.Logger, pid int) (*TypeDbg, error) {
	dbger := newDbg(logger)
	dbger.pid = pid
	dbger.isAttach = true
	dbger.isStart = true

	if !dbger.isProcessAlive() {
		return nil, fmt.Errorf("process %d does not exist", pid)
	}

	if dbger.isProcessTraced() {
		return nil, fmt.Errorf("process %d is already being traced", pid)
	}

	if exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		dbger.path = exe
	}

	err := doSyscallErr(dbger.rpc, func() error {
		return unix.PtraceAttach(pid)
	})
	if err != nil {
		return nil, dbger.formatPtraceError("attach", err)
	}

	Printf("attached to PID:%d\n", pid)

	if _, err = dbger.rawWait(); err != nil {
		derr := doSyscallErr(dbger.rpc, func() error {
			return unix.PtraceDetach(pid)
		})
		if derr != nil {
			return nil, derr
		}
		return nil, err
	}

	if err := dbger.loadBase(); err != nil {
		return nil, err
	}

	return dbger, nil
}

func (dbger *TypeDbg) Detach() error {
	if dbger.pid <= 0 {
		return errors.New("invalid PID")
	}

	// Leave no trap bytes behind in the detached process.
	for _, bp := range dbger.bps {
		if bp.isEnable {
			if err := bp.disableBp(); err != nil {
				dbger.logger.Warn().Err(err).Msg("could not restore breakpoint bytes on detach")
			}
		}
	}

	err := doSyscallErr(dbger.rpc, func() error {
		return unix.PtraceDetach(dbger.pid)
	})
	if err != nil {
		return err
	}

	Printf("detached from PID:%d\n", dbger.pid)
	dbger.isStart = false
	return nil
}

func (dbger *TypeDbg) stop() error {
	return doSyscallErr(dbger.rpc, func() error {
		return unix.Kill(dbger.pid, unix.SIGSTOP)
	})
}

// rawWait performs a single wait4 without breakpoint handling.
func (dbger *TypeDbg) rawWait() (unix.WaitStatus, error) {
	var ws unix.WaitStatus

	err := doSyscallErr(dbger.rpc, func() error {
		_, err := unix.Wait4(dbger.pid, &ws, 0, nil)
		return err
	})
	if err != nil {
		return 0, dbger.formatPtraceError("wait", err)
	}

	if ws.Exited() {
		Printf("PID:%d exited with status %d\n", dbger.pid, ws.ExitStatus())
		dbger.isStart = false
	}

	return ws, nil
}

// wait blocks until the target stops for a reason the user should see.
// Internal intercepts (the solib monitor's linker hook) are serviced here:
// the callback runs while the target is stopped, and unless it asks to halt
// the breakpoint is stepped over and the target resumes without wait
// returning.
func (dbger *TypeDbg) wait() (unix.WaitStatus, error) {
	for {
		ws, err := dbger.rawWait()
		if err != nil || ws.Exited() {
			return ws, err
		}
		if !ws.Stopped() {
			return ws, nil
		}

		rip, err := dbger.GetRip()
		if err != nil {
			return ws, nil
		}
		dbger.rip = rip

		bp := dbger.findBp(uintptr(rip - 1))
		if bp == nil || !bp.isEnable {
			dbger.notifyObjFile()
			return ws, nil
		}

		if bp.onHit == nil {
			Printf("stopped at breakpoint @ %x\n", rip-1)
			dbger.notifyObjFile()
			return ws, nil
		}

		if halt := bp.onHit(); halt {
			return ws, nil
		}

		if err := dbger.stepOver(bp); err != nil {
			return ws, err
		}
		if !dbger.isStart {
			return ws, nil
		}
		err = doSyscallErr(dbger.rpc, func() error {
			return unix.PtraceCont(dbger.pid, 0)
		})
		if err != nil {
			return ws, err
		}
	}
}

// stepOver executes the original instruction under bp and re-arms it.
// Assumes the target is stopped just past the trap byte.
func (dbger *TypeDbg) stepOver(bp *TypeBp) error {
	if err := bp.disableBp(); err != nil {
		return err
	}
	if err := dbger.SetRip(uint64(bp.addr)); err != nil {
		return err
	}
	err := doSyscallErr(dbger.rpc, func() error {
		return unix.PtraceSingleStep(dbger.pid)
	})
	if err != nil {
		return err
	}
	if _, err := dbger.rawWait(); err != nil {
		return err
	}
	if !dbger.isStart {
		return nil
	}
	return bp.enableBp()
}

func (dbger *TypeDbg) Continue() error {
	if !dbger.isProcessAlive() {
		return errors.New("process is not alive")
	}

	rip, err := dbger.GetRip()
	if err != nil {
		return err
	}

	// Resuming from on top of a breakpoint needs a step-over first.
	if bp := dbger.findBp(uintptr(rip - 1)); bp != nil && bp.isEnable {
		if err := dbger.stepOver(bp); err != nil {
			return err
		}
		if !dbger.isStart {
			return nil
		}
	}

	err = doSyscallErr(dbger.rpc, func() error {
		return unix.PtraceCont(dbger.pid, 0)
	})
	if err != nil {
		return err
	}

	_, err = dbger.wait()
	return err
}

func (dbger *TypeDbg) Step() error {
	err := doSyscallErr(dbger.rpc, func() error {
		return unix.PtraceSingleStep(dbger.pid)
	})
	if err != nil {
		return err
	}
	if _, err = dbger.rawWait(); err != nil {
		return err
	}
	if dbger.isStart {
		if rip, err := dbger.GetRip(); err == nil {
			dbger.rip = rip
		}
	}
	return nil
}

func (dbger *TypeDbg) formatPtraceError(operation string, err error) error {
	if err == unix.ESRCH {
		return fmt.Errorf("%s failed: process %d does not exist or exited", operation, dbger.pid)
	}
	if err == unix.EPERM {
		return fmt.Errorf("%s failed: permission denied", operation)
	}
	if err == unix.EBUSY {
		return fmt.Errorf("%s failed: process is busy", operation)
	}
	return fmt.Errorf("%s failed: %v", operation, err)
}
