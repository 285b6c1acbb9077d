package main

import (
	"os"

	"github.com/telhawk-systems/logship/agent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
