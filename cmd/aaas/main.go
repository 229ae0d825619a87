// Command aaas runs the staked challenge escrow engine.
package main

import (
	"fmt"
	"os"

	"github.com/aaas-network/aaas/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
