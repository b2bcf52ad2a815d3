// Package main provides the ndrbatch CLI entrypoint.
package main

import (
	"os"

	"github.com/mesh-intelligence/ndrbatch/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
