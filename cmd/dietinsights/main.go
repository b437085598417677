// Command dietinsights serves and maintains cached diet nutrition views.
package main

import (
	"fmt"
	"os"

	"dietinsights/internal/adapters/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
