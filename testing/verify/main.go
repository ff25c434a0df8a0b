package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"

	"github.com/edgelesssys/go-csv-qpl/blobs"
	"github.com/edgelesssys/go-csv-qpl/verification"
)

func main() {
	if err := testVerify(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func testVerify() error {
	chain, err := blobs.NewChain(rand.Reader)
	if err != nil {
		return err
	}
	opts := blobs.DefaultReportOptions()
	rsp, err := chain.Respond(rand.Reader, opts)
	if err != nil {
		return err
	}

	verifier, err := verification.New(chain.HRK)
	if err != nil {
		return err
	}
	result, err := verifier.Verify(context.Background(), rsp, opts.MNonce, verification.VerifyOptions{
		HSK: &chain.HSK,
		CEK: &chain.CEK,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Verified report of chip %s with policy %s\n", result.ChipID, result.Policy)
	return nil
}
