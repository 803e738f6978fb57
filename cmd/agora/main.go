package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runDemo(stdout, stderr)
	}

	switch args[1] {
	case "demo":
		return runDemo(stdout, stderr)
	case "serve":
		return runServe(stdout, stderr)
	case "version":
		_, _ = fmt.Fprintln(stdout, "agora node")
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		_, _ = fmt.Fprintln(stderr, "Usage: agora <demo|serve|version>")
		return 2
	}
}
