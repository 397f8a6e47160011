// Command mestouches captures keyboard, pointer and window activity into
// three durable store files.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/mestouches/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
