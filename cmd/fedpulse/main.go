package main

import (
	"os"

	"github.com/fedpulse/fedpulse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
