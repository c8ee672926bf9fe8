package main

import (
	"os"

	"github.com/rafaeljc/bifrost/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
