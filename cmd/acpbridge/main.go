// Command acpbridge lets ACP clients such as editors talk to Claude Code.
//
// Without a subcommand it serves the Agent Client Protocol on stdio;
// `acpbridge chat` opens an interactive session in the terminal instead.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}
