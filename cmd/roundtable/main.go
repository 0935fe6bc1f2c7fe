package main

import (
	"os"

	"github.com/roundtable-games/roundtable/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
