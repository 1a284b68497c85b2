// Command codesearch indexes source repositories into a hybrid
// metadata + vector + graph store and keeps the three convergent
// through a transactional outbox.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
