package main

import (
	"context"
	"fmt"
	"os"

	"github.com/edgelesssys/go-csv-qpl/verification/kds"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <hrk.cert> <chip id>\n", os.Args[0])
		os.Exit(2)
	}
	if err := kdsConnection(os.Args[1], os.Args[2]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func kdsConnection(hrkPath, chipID string) error {
	rawHRK, err := os.ReadFile(hrkPath)
	if err != nil {
		return err
	}
	hrk, err := types.ParseCACertificate(rawHRK)
	if err != nil {
		return err
	}

	client, err := kds.New(hrk, kds.DefaultURL)
	if err != nil {
		return err
	}

	hsk, cek, err := client.GetChain(context.Background(), chipID)
	if err != nil {
		return err
	}
	fmt.Println("Fetched and verified HSK and CEK")
	fmt.Printf("HSK:\n%+v\n", hsk)
	fmt.Printf("CEK:\n%+v\n", cek)
	return nil
}
