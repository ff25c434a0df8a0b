package types

import (
	"fmt"

	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
)

const (
	// ReportDataSize is the size of the guest provided report data.
	ReportDataSize = 64
	// MNonceSize is the size of the guest provided nonce.
	MNonceSize = 16
	// ReportRequestSize is the size of a serialized ReportRequest.
	ReportRequestSize = ReportDataSize + MNonceSize + crypto.DigestSize
)

// ReportRequest is the data provided by the guest owner when requesting an attestation report.
type ReportRequest struct {
	// Data is included in the attestation report.
	Data [ReportDataSize]byte
	// MNonce is placed in the report to protect against replays.
	MNonce [MNonceSize]byte
	// Hash is the SM3 digest over Data and MNonce.
	Hash [crypto.DigestSize]byte
}

// NewReportRequest creates a ReportRequest and computes its hash.
// If data is nil, the report data is zeroed.
func NewReportRequest(data *[ReportDataSize]byte, mnonce [MNonceSize]byte) (ReportRequest, error) {
	return NewReportRequestWithSuite(crypto.Default, data, mnonce)
}

// NewReportRequestWithSuite creates a ReportRequest, computing the hash with the given suite.
func NewReportRequestWithSuite(suite crypto.Suite, data *[ReportDataSize]byte, mnonce [MNonceSize]byte) (ReportRequest, error) {
	var req ReportRequest
	if data != nil {
		req.Data = *data
	}
	req.MNonce = mnonce

	hash, err := suite.Hash(req.Data[:], req.MNonce[:])
	if err != nil {
		return ReportRequest{}, fmt.Errorf("hashing report request: %w", err)
	}
	req.Hash = hash
	return req, nil
}

// ParseReportRequest parses a serialized ReportRequest.
// The hash is taken as is. Use NewReportRequest to compute it from trusted input.
func ParseReportRequest(raw []byte) (ReportRequest, error) {
	if len(raw) != ReportRequestSize {
		return ReportRequest{}, fmt.Errorf("report request must be %d bytes, got %d bytes", ReportRequestSize, len(raw))
	}
	return ReportRequest{
		Data:   [ReportDataSize]byte(raw[0:64]),
		MNonce: [MNonceSize]byte(raw[64:80]),
		Hash:   [crypto.DigestSize]byte(raw[80:112]),
	}, nil
}
