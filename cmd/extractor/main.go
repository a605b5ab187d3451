package main

import (
	"os"

	"github.com/lk2023060901/llm-field-extractor/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
