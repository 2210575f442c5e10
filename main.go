package main

import (
	"os"

	"github.com/atmo-climate/atmo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
