package main

import (
	"fmt"
	"os"

	"github.com/avivsinai/signalbox/internal/cli"
)

var version = "dev"

func main() {
	cli.Version = version
	if err := cli.Run(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "signalbox:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
