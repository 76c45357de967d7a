// Command matchctl runs matching and shortlist operations against the
// configured stores without going through Zeebe.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
