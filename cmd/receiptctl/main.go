package main

import (
	"os"

	"gagyebu/internal/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := cli.SignalContext()
	defer stop()

	if err := cli.NewReceiptCommand(version).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
