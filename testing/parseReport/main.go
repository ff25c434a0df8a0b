package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/edgelesssys/go-csv-qpl/verification/types"
)

func main() {
	if err := parseBlob(); err != nil {
		panic(err)
	}
}

func parseBlob() error {
	rawResponse, err := os.ReadFile("report")
	if err != nil {
		return err
	}

	rsp, err := types.ParseReportResponse(rawResponse)
	if err != nil {
		return err
	}

	prettyPrint, err := json.MarshalIndent(struct {
		Body        types.Body
		PlainNonce  [types.MNonceSize]byte
		PlainPolicy types.PolicyFields
		Signature   types.Signature
	}{
		Body:        rsp.Report.Body,
		PlainNonce:  rsp.Report.PlainNonce(),
		PlainPolicy: rsp.Report.PlainPolicy().Fields(),
		Signature:   rsp.Report.Signature,
	}, "", " ")
	if err != nil {
		return err
	}

	fmt.Println(string(prettyPrint))

	return nil
}
