package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
)

// Interactive runs the command loop until EOF or an exit command.
func (dbger *TypeDbg) Interactive() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT)
	defer signal.Stop(sigChan)

	// SIGINT stops the running target instead of killing the debugger.
	go func() {
		for range sigChan {
			Printf("\n^C - stopping target...\n")
			if dbger.isStart && !dbger.isStopped() {
				if err := dbger.stop(); err != nil {
					LogError("failed to stop target: %v", err)
				}
			}
		}
	}()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "[solibMon]$ ",
		HistoryFile:       "/tmp/solibmon_history.txt",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		FuncFilterInputRune: func(r rune) (rune, bool) {
			switch r {
			case readline.CharCtrlZ:
				return r, false
			}
			return r, true
		},
	})
	if err != nil {
		panic(err)
	}
	defer rl.Close()

	prev := ""
	for {
		if dbger.isStart {
			rl.SetPrompt(fmt.Sprintf("[%ssolibMon%s:%s0x%x%s]$ ",
				ColorCyan, ColorReset, ColorCyan, dbger.rip, ColorReset))
		} else {
			rl.SetPrompt("[solibMon]$ ")
		}

		req, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			continue
		}

		if req == "" {
			if prev == "" {
				continue
			}
			req = prev
		}

		if req == "q" || req == "exit" || req == "quit" {
			break
		}

		prev = req

		resolvedReq := req
		if strings.Contains(req, "$") {
			resolvedReq, _ = resolveSymbolsInCommand(req, dbger)
		}

		if err := dbger.cmdExec(resolvedReq); err != nil {
			LogError(err.Error())
		}
	}
}
