// Command glitchbot runs the curation and reply decision engine.
package main

import (
	"os"

	"github.com/chelinho139/glitchbot/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
