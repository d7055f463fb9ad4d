// Command scrapectl runs the dealer scrapers as supervised child processes.
package main

import (
	"errors"
	"log/slog"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			os.Exit(130)
		}
		slog.Error("scrapectl failed", "error", err)
		os.Exit(1)
	}
}
