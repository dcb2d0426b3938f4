// Command mongodb-restore is shorthand for "mongowiz restore".
package main

import (
	"os"

	"mongowiz/src/cli"
)

func main() {
	os.Exit(cli.ExecuteArgs(append([]string{"restore"}, os.Args[1:]...)))
}
