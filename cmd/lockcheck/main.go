// Package main implements the lockcheck CLI tool.
//
// lockcheck reports mutex acquisitions that can leak their hold:
//
//  1. Parsing Go source files using go/ast
//  2. Pairing every Lock/RLock with a deferred Unlock/RUnlock
//  3. Checking that every lock.Scope guard is released by defer
//
// Usage:
//
//	lockcheck check ./...          # Check the current module
//	lockcheck check -json bus.go   # Machine-readable findings
//
// Exit status is 0 when nothing is found, 1 when there are findings and 2
// when the sources could not be read.
package main

import (
	"fmt"
	"os"

	"github.com/kolkov/reclock/lock"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	command := os.Args[1]

	switch command {
	case "check":
		os.Exit(checkCommand(os.Args[2:], os.Stdout, os.Stderr))
	case "version", "--version", "-v":
		info := lock.GetInfo()
		fmt.Printf("lockcheck version %s (reclock %s, %s, goid via %s)\n",
			version, info.Version, info.Primitive, info.Identity)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Print(`lockcheck - Lock usage checker

USAGE:
    lockcheck <command> [arguments]

COMMANDS:
    check      Report Lock/RLock calls and lock.Scope guards not released by defer
    version    Show version information
    help       Show this help message

CHECK FLAGS:
    -json      Print findings as JSON
    -no-color  Disable colored output

EXAMPLES:
    # Check every package below the current directory
    lockcheck check ./...

    # Check one file and feed the result to another tool
    lockcheck check -json internal/bus/bus.go

ABOUT:
    A recursive mutex forgives re-entry but not a missed release: one early
    return that skips an Unlock keeps the whole recursion held. lockcheck
    flags every acquisition whose release is not deferred in the same
    function, which is the pattern lock.Scope and defer g.Release() make
    automatic.
`)
}
