package main

import (
	"os"

	"github.com/scottlz0310/ci-helper/internal/interface/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
