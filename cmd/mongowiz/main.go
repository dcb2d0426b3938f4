package main

import (
	"os"

	"mongowiz/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
