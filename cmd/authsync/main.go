// Command authsync drives the session engine from a terminal: account flows
// against Kratos, session inspection, metrics, an in-memory demo, and a store
// stress run.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}
