// diagctl inspects a host with the diag engine: system facts, resolved
// configuration, endpoint and connectivity probes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "diagctl:", err)
		os.Exit(1)
	}
}
