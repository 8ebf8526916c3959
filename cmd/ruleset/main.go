package main

import (
	"os"

	"github.com/solatis/ruleset/cmd/ruleset/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
