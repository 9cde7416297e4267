package main

import (
	"os"

	"github.com/nimasrn/intake-gateway/pkg/logger"
)

func main() {
	defer logger.Sync()
	if err := Execute(); err != nil {
		logger.Error("inbox command failed", "error", err)
		os.Exit(1)
	}
}
