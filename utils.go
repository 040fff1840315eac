package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorWhite  = "\033[37m"
	ColorBold   = "\033[1m"
)

func LogError(msg string, a ...interface{}) {
	fmt.Printf("%s[ERROR]%s %s\n", ColorRed, ColorReset, fmt.Sprintf(msg, a...))
}

func LogWarn(msg string, a ...interface{}) {
	fmt.Printf("%s[WARN]%s %s\n", ColorYellow, ColorReset, fmt.Sprintf(msg, a...))
}

// Printf colorizes the common numeric and string verbs before printing.
func Printf(msg string, a ...interface{}) {
	msg = strings.ReplaceAll(msg, "%d", ColorCyan+"%d"+ColorReset)
	msg = strings.ReplaceAll(msg, "0x%016x", ColorCyan+"0x%016x"+ColorReset)
	msg = strings.ReplaceAll(msg, "%016x", ColorCyan+"%016x"+ColorReset)
	msg = strings.ReplaceAll(msg, "%x", ColorCyan+"%x"+ColorReset)
	msg = strings.ReplaceAll(msg, "%s", ColorGreen+"%s"+ColorReset)

	fmt.Printf(msg, a...)
}

func hLine(msg string) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		w, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err == nil && w > len(msg)+2 {
			pad := strings.Repeat("-", (w-len(msg)-2)/2)
			fmt.Printf("%s[%s]%s\n", pad, msg, pad)
			return
		}
	}
	fmt.Printf("[%s]\n", msg)
}
