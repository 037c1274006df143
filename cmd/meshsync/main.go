package main

import (
	"fmt"
	"os"
)

func main() {
	cmd, a := newRootCommand()
	err := cmd.Execute()
	a.shutdown()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
