// Command syncctl runs sync operations against the service storage from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "syncctl: %v\n", err)
		os.Exit(1)
	}
}
