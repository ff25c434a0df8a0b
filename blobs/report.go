package blobs

import (
	"fmt"
	"io"

	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
)

// ReportOptions are the contents of a generated attestation report.
type ReportOptions struct {
	ReportData       [types.ReportDataSize]byte
	MNonce           [types.MNonceSize]byte
	Measure          [32]byte
	Policy           types.GuestPolicy
	ANonce           uint32
	ChipID           string
	VMID             [16]byte
	VMVersion        [16]byte
	UserPubKeyDigest [32]byte
}

// DefaultReportOptions returns report options with fixed, recognizable values.
func DefaultReportOptions() ReportOptions {
	opts := ReportOptions{
		Policy: types.NewGuestPolicy(types.PolicyFields{NoDebug: true, NoKeySharing: true, CSV: true, APIMajor: 1, APIMinor: 2}),
		ANonce: 0x1a2b3c4d,
		ChipID: DefaultChipID,
	}
	for i := range opts.ReportData {
		opts.ReportData[i] = byte(i)
	}
	for i := range opts.MNonce {
		opts.MNonce[i] = byte(0xA0 + i)
	}
	for i := range opts.Measure {
		opts.Measure[i] = 0x5A
	}
	copy(opts.VMID[:], "vm-0001")
	copy(opts.VMVersion[:], "v1")
	return opts
}

// Respond produces the firmware's response to a report request: an attestation report signed
// by the chain's PEK, followed by the masked signer evidence.
func (c *Chain) Respond(rand io.Reader, opts ReportOptions) (types.ReportResponse, error) {
	report := types.AttestationReport{
		Body: types.Body{
			UserPubKeyDigest: opts.UserPubKeyDigest,
			VMID:             opts.VMID,
			VMVersion:        opts.VMVersion,
			ReportData:       opts.ReportData,
			MNonce:           opts.MNonce,
			Measure:          opts.Measure,
			Policy:           opts.Policy.Xor(opts.ANonce),
		},
		SigUsage: uint32(types.UsagePEK),
		SigAlgo:  uint32(types.AlgoSM2Signature),
		ANonce:   opts.ANonce,
	}
	crypto.Keystream(report.Body.MNonce[:], opts.ANonce)

	if err := c.SignReport(rand, &report); err != nil {
		return types.ReportResponse{}, err
	}

	plain := types.PlaintextEvidence{PEKCert: c.PEK.Marshal()}
	copy(plain.SerialNumber[:], opts.ChipID)
	signer, err := types.Obfuscate(crypto.Default, plain, opts.MNonce, opts.ANonce)
	if err != nil {
		return types.ReportResponse{}, fmt.Errorf("masking signer evidence: %w", err)
	}

	return types.ReportResponse{Report: report, Signer: signer}, nil
}

// SignReport signs the report body with the chain's PEK.
func (c *Chain) SignReport(rand io.Reader, report *types.AttestationReport) error {
	body, err := report.SignedBody()
	if err != nil {
		return err
	}
	r, s, err := sign(rand, c.PEKKey, PEKUserID, body)
	if err != nil {
		return fmt.Errorf("signing report: %w", err)
	}
	report.Signature = types.Signature{R: r, S: s}
	return nil
}
