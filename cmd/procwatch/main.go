// cmd/procwatch/main.go
package main

import (
	"fmt"
	"os"

	"github.com/tamzrod/procimg-watch/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "procwatch:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
