package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const numPat = `(0[xX][0-9a-fA-F]+|0[0-7]+|[1-9][0-9]*|0)`

type cmdHandler struct {
	regex *regexp.Regexp
	fn    func(*TypeDbg, []string) error
}

var compiledCmds = []cmdHandler{
	{regexp.MustCompile(`^\s*(b|break|B|BREAK)\s+` + numPat + `$`), (*TypeDbg).cmdBreak},
	{regexp.MustCompile(`^\s*(b|break|B|BREAK)\s+(pie|PIE)\s+` + numPat + `$`), (*TypeDbg).cmdBreakPie},
	{regexp.MustCompile(`^\s*(enable)\s+` + numPat + `$`), (*TypeDbg).cmdEnable},
	{regexp.MustCompile(`^\s*(disable)\s+` + numPat + `$`), (*TypeDbg).cmdDisable},
	{regexp.MustCompile(`^\s*(c|continue|cont|C|CONTINUE|CONT)\s*$`), (*TypeDbg).cmdContinue},
	{regexp.MustCompile(`^\s*(step|STEP)\s*$`), (*TypeDbg).cmdStep},
	{regexp.MustCompile(`^\s*(regs)(?:\s+(\w+))?\s*$`), (*TypeDbg).cmdRegs},
	{regexp.MustCompile(`^\s*(vmmap|VMMAP)\s*$`), (*TypeDbg).cmdVmmap},
	{regexp.MustCompile(`^\s*(sym|symbol|SYM|SYMBOL)(?:\s+(\S+))?\s*$`), (*TypeDbg).cmdSym},
	{regexp.MustCompile(`^\s*(p|print|P|PRINT)\s+(.+)$`), (*TypeDbg).cmdPrint},
	{regexp.MustCompile(`^\s*(db|xxd)\s+` + numPat + `(?:\s+` + numPat + `)?$`), (*TypeDbg).cmdDumpByte},
	{regexp.MustCompile(`^\s*(disass)(?:\s+` + numPat + `)?(?:\s+` + numPat + `)?$`), (*TypeDbg).cmdDisass},
	{regexp.MustCompile(`^\s*(set)\s+` + numPat + `\s+` + numPat + `$`), (*TypeDbg).cmdSet},
	{regexp.MustCompile(`^\s*(setreg)\s+(\w+)\s+` + numPat + `$`), (*TypeDbg).cmdSetReg},
	{regexp.MustCompile(`^\s*(solib|SOLIB)\s*$`), (*TypeDbg).cmdSolib},
	{regexp.MustCompile(`^\s*(watch)\s+` + numPat + `(?:\s+` + numPat + `)?$`), (*TypeDbg).cmdWatch},
	{regexp.MustCompile(`^\s*(unwatch)\s+` + numPat + `$`), (*TypeDbg).cmdUnwatch},
	{regexp.MustCompile(`^\s*(watchlist)\s*$`), (*TypeDbg).cmdWatchList},
	{regexp.MustCompile(`^\s*(detach|DETACH)\s*$`), (*TypeDbg).cmdDetach},
	{regexp.MustCompile(`^\s*(help|h|\?)\s*$`), (*TypeDbg).cmdHelp},
}

func (dbger *TypeDbg) cmdExec(req string) error {
	for _, handler := range compiledCmds {
		if m := handler.regex.FindStringSubmatch(req); m != nil {
			return handler.fn(dbger, m)
		}
	}
	return errors.New("unknown command")
}

func (dbger *TypeDbg) cmdBreak(args []string) error {
	addr, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return err
	}

	if _, err = dbger.NewBp(uintptr(addr)); err != nil {
		return err
	}
	return nil
}

func (dbger *TypeDbg) cmdBreakPie(args []string) error {
	addr, err := strconv.ParseUint(args[3], 0, 64)
	if err != nil {
		return err
	}

	if _, err = dbger.NewBp(uintptr(addr + dbger.ExeBias())); err != nil {
		return err
	}
	return nil
}

func (dbger *TypeDbg) cmdEnable(args []string) error {
	idx, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return err
	}
	return dbger.EnableBp(int(idx))
}

func (dbger *TypeDbg) cmdDisable(args []string) error {
	idx, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return err
	}
	return dbger.DisableBp(int(idx))
}

func (dbger *TypeDbg) cmdContinue([]string) error {
	return dbger.Continue()
}

func (dbger *TypeDbg) cmdStep([]string) error {
	return dbger.Step()
}

func (dbger *TypeDbg) cmdRegs(args []string) error {
	if len(args) > 2 && args[2] != "" {
		val, err := dbger.GetRegs(args[2])
		if err != nil {
			return err
		}
		Printf("%-8s 0x%016x\n", strings.ToUpper(args[2]), val)
		return nil
	}
	return dbger.dumpRegs()
}

func (dbger *TypeDbg) cmdVmmap([]string) error {
	if err := dbger.loadBase(); err != nil {
		return err
	}
	hLine("vmmap")
	for _, m := range dbger.maps {
		Printf("0x%016x-0x%016x %s %s\n", m.start, m.end, m.rwx, m.path)
	}
	return nil
}

func (dbger *TypeDbg) cmdSym(args []string) error {
	filter := ""
	if len(args) > 2 {
		filter = args[2]
	}
	return dbger.ListSymbols(filter)
}

func (dbger *TypeDbg) cmdPrint(args []string) error {
	val, err := EvaluateExpression(args[2], dbger)
	if err != nil {
		return err
	}
	Printf("%d (0x%016x)\n", val, val)
	dbger.resolveSyms(val)
	return nil
}

func (dbger *TypeDbg) cmdDumpByte(args []string) error {
	addr, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return err
	}
	n := uint64(64)
	if len(args) > 3 && args[3] != "" {
		if n, err = strconv.ParseUint(args[3], 0, 64); err != nil {
			return err
		}
	}

	mem, err := dbger.GetMemory(uint(n), uintptr(addr))
	if err != nil {
		return err
	}
	for off := 0; off < len(mem); off += 16 {
		end := off + 16
		if end > len(mem) {
			end = len(mem)
		}
		row := mem[off:end]

		var hexCol, asciiCol strings.Builder
		for i, b := range row {
			if i == 8 {
				hexCol.WriteByte(' ')
			}
			fmt.Fprintf(&hexCol, "%02x ", b)
			if b >= 0x20 && b < 0x7f {
				asciiCol.WriteByte(b)
			} else {
				asciiCol.WriteByte('.')
			}
		}
		Printf("0x%016x: %-49s |%s|\n", addr+uint64(off), hexCol.String(), asciiCol.String())
	}
	return nil
}

func (dbger *TypeDbg) cmdDisass(args []string) error {
	addr := dbger.rip
	count := 8
	var err error
	if len(args) > 2 && args[2] != "" {
		if addr, err = strconv.ParseUint(args[2], 0, 64); err != nil {
			return err
		}
	}
	if len(args) > 3 && args[3] != "" {
		n, err := strconv.ParseUint(args[3], 0, 64)
		if err != nil {
			return err
		}
		count = int(n)
	}
	return dbger.disass(addr, count)
}

func (dbger *TypeDbg) cmdSet(args []string) error {
	addr, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return err
	}
	val, err := strconv.ParseUint(args[3], 0, 64)
	if err != nil {
		return err
	}

	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, val)
	if err := dbger.SetMemory(buf, uintptr(addr)); err != nil {
		return err
	}
	Printf("wrote 0x%016x to 0x%016x\n", val, addr)
	return nil
}

func (dbger *TypeDbg) cmdSetReg(args []string) error {
	val, err := strconv.ParseUint(args[3], 0, 64)
	if err != nil {
		return err
	}
	if err := dbger.SetRegs(args[2], val); err != nil {
		return err
	}
	Printf("%-8s 0x%016x\n", strings.ToUpper(args[2]), val)
	return nil
}

func (dbger *TypeDbg) cmdSolib([]string) error {
	if dbger.solib == nil {
		return errors.New("solib monitor not attached")
	}

	hLine("solib")
	if dbger.solib.Installed() {
		Printf("linker hook: armed @ 0x%016x (r_debug @ 0x%016x)\n",
			dbger.solib.HookAddr(), dbger.solib.RDebugAddr())
	} else {
		Printf("linker hook: not armed yet\n")
	}

	libs := dbger.solib.Libraries()
	if libs == nil {
		Printf("link map not readable yet\n")
		return nil
	}
	Printf("%-18s %-6s %s\n", "BIAS", "SYMS", "PATH")
	for _, lib := range libs {
		loaded := "no"
		for i, obj := range dbger.libs {
			if i > 0 && filepath.Base(obj.name) == filepath.Base(lib.Path) {
				loaded = "yes"
				break
			}
		}
		Printf("0x%016x %-6s %s\n", lib.Bias, loaded, lib.Path)
	}
	return nil
}

func (dbger *TypeDbg) cmdWatch(args []string) error {
	addr, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return err
	}
	size := uint64(8)
	if len(args) > 3 && args[3] != "" {
		if size, err = strconv.ParseUint(args[3], 0, 64); err != nil {
			return err
		}
	}
	return dbger.SetWatchpoint(addr, size)
}

func (dbger *TypeDbg) cmdUnwatch(args []string) error {
	slot, err := strconv.ParseUint(args[2], 0, 64)
	if err != nil {
		return err
	}
	return dbger.ClearWatchpoint(int(slot))
}

func (dbger *TypeDbg) cmdWatchList([]string) error {
	dbger.listWatchpoints()
	return nil
}

func (dbger *TypeDbg) cmdDetach([]string) error {
	return dbger.Detach()
}

func (dbger *TypeDbg) cmdHelp([]string) error {
	Printf("commands:\n")
	Printf("  b|break ADDR        set breakpoint (break pie ADDR for PIE-relative)\n")
	Printf("  enable|disable IDX  toggle breakpoint\n")
	Printf("  c|continue          resume target\n")
	Printf("  step                single step\n")
	Printf("  regs [NAME]         show registers\n")
	Printf("  p EXPR              evaluate expression ($sym, $reg, arithmetic)\n")
	Printf("  db|xxd ADDR [N]     hexdump target memory\n")
	Printf("  set ADDR VAL        write a qword to target memory\n")
	Printf("  setreg NAME VAL     write a register\n")
	Printf("  disass [ADDR [N]]   disassemble\n")
	Printf("  sym [FILTER]        list symbols\n")
	Printf("  vmmap               show memory mappings\n")
	Printf("  solib               show dynamic linker hook and link map state\n")
	Printf("  watch ADDR [SIZE]   hardware watchpoint; unwatch SLOT; watchlist\n")
	Printf("  detach              detach from target\n")
	Printf("  q|exit              quit\n")
	return nil
}
