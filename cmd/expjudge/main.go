package main

import (
	"os"

	"github.com/expjudge/expjudge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
