// Command mongodb-backup is shorthand for "mongowiz backup".
package main

import (
	"os"

	"mongowiz/src/cli"
)

func main() {
	os.Exit(cli.ExecuteArgs(append([]string{"backup"}, os.Args[1:]...)))
}
