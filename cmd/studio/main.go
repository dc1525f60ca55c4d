package main

import (
	"os"

	"github.com/nhle/studio-pratiche/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
