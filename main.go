package main

import (
	"os"

	"github.com/markdown-to-latex/manager/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
