package main

import (
	"fmt"
	"log"
	"os"

	"github.com/edgelesssys/go-csv-qpl/csv"
	"github.com/edgelesssys/go-csv-qpl/evidence"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
)

func main() {
	if err := testCSV(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func testCSV() error {
	handle, err := csv.OpenGuest()
	if err != nil {
		return err
	}
	defer handle.Close()

	var reportData [types.ReportDataSize]byte
	copy(reportData[:], "Hello from Edgeless Systems!")
	mnonce := [types.MNonceSize]byte{'n', 'o', 't', ' ', 'r', 'a', 'n', 'd', 'o', 'm'}

	req, err := types.NewReportRequest(&reportData, mnonce)
	if err != nil {
		return err
	}
	rsp, err := csv.GetReport(handle, req)
	if err != nil {
		return err
	}

	raw := rsp.Marshal()
	if err := os.WriteFile("report", raw[:], 0o644); err != nil {
		return err
	}
	bundle := evidence.Bundle{Response: rsp, MNonce: mnonce}
	if err := os.WriteFile("evidence.bin", bundle.Marshal(), 0o644); err != nil {
		return err
	}
	log.Println("Successfully written report")

	return nil
}
