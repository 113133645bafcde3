package main

import (
	"fmt"
	"os"

	"github.com/scbrown/storyrun/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sr:", err)
		os.Exit(1)
	}
}
