package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"solibMon/monitor"
)

func main() {
	fn := flag.String("f", "", "binary to run under the debugger")
	pid := flag.Int("p", 0, "process id to attach to")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] [-- ARGS...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if (*fn == "" && *pid == 0) || (*fn != "" && *pid != 0) {
		fmt.Fprintf(os.Stderr, "Invalid arguments\n")
		flag.Usage()
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.WarnLevel).
		With().Timestamp().Logger()
	if *verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	var dbger *TypeDbg
	var err error
	if *fn != "" {
		dbger, err = Run(logger, *fn, flag.Args()...)
	} else {
		dbger, err = Attach(logger, *pid)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer dbger.rpc.closeSyscall()

	if err := dbger.LoadInitialSymbols(); err != nil {
		LogWarn("initial symbol load failed: %v", err)
	}
	if err := dbger.Reload(); err != nil {
		LogWarn("base address resolution failed: %v", err)
	}

	sess := monitor.NewSession(dbger, dbger.path, dbger.ExeBias(), logger)
	sess.OnInstall = func(brk uint64) {
		Printf("linker hook armed @ 0x%016x\n", brk)
		if insn, err := dbger.DisassOne(uintptr(brk)); err == nil {
			Printf("  %s\n", strings.TrimSpace(*insn))
		}
	}
	dbger.solib = sess
	dbger.OnNewObjFile(sess.NotifyObjFile)

	// The initial load already happened; give the monitor its first look.
	sess.NotifyObjFile()

	dbger.Interactive()
}
