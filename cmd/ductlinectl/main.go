package main

import (
	"os"

	"github.com/ductline/ductline/cmd/ductlinectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
