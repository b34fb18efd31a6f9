package main

import (
	"os"

	"companionlife/interfaces/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		cli.WriteError(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
