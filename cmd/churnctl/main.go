// Command churnctl generates datasets, trains the churn model and scores
// customer files from the command line.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
