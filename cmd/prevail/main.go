// Command prevail is the operational CLI of a prevalent object store data
// directory.
package main

import (
	"os"

	"github.com/roach88/prevail/internal/cli"
)

func main() {
	os.Exit(cli.Execute(cli.NewRootCommand()))
}
