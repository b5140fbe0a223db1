// Command tukar queries the configured venues from the terminal and prints
// the unified results as JSON.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
