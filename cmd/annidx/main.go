// annidx builds, searches and benchmarks approximate nearest-neighbor
// indexes.
//
// Usage:
//
//	annidx bench                          # benchmark on a synthetic dataset
//	annidx bench --config bench.yaml      # benchmark with a config file
//	annidx import docs.jsonl              # copy JSON Lines into a SQL table
//	annidx build --input docs.jsonl       # build and snapshot a collection
//	annidx search --vector "[0.1,0.2]"    # query a snapshot
//
// The configuration file may also be given with $ANNIDX_CONFIG.
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/annidx/cmd/annidx/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
