package main

import (
	"os"

	"github.com/edgelesssys/go-csv-qpl/cmd/csv-attest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
