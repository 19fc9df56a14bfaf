package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/llxisdsh/parkx/cmd/parkx/commands"
)

const (
	cmdName = "parkx"

	shortDesc = "Exercise the parkx synchronization primitives."
	longDesc  = `parkx runs demonstrations and randomized stress workloads against the
parkx channel, mutex, condition variable and reader-writer lock.

The stress command exits non-zero if a workload breaks a safety invariant or
stalls past its timeout (a missed wakeup).
`
)

func main() {
	cmd := commands.NewRootCmd(cmdName, shortDesc, longDesc)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimLeft(err.Error(), "\n"))
		os.Exit(1)
	}
}
