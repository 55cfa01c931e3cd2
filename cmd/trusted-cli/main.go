package main

import (
	"os"
	"tee/trusted-ops/cmd/trusted-cli/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
