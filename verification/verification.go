/*
# Hygon CSV Attestation Verification

This package provides a simple interface to verify the report responses of Hygon CSV guests.

Verification of a report response follows these steps:

  - Authenticate the signer evidence with the guest owner's nonce, and unmask the PEK certificate
    and the chip serial number.

  - Retrieve the HSK and CEK for the chip from Hygon's KDS, or take them from the caller.

  - Verify the certificate chain: HRK ──► HSK ──► CEK ──► PEK.

  - Verify the attestation report was signed by the PEK.

  - Compare the report's measurement and report data with the expected values, if given.

The HRK is the root of trust. It must be obtained out of band and is checked once, when the verifier is created.
*/
package verification

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"go.uber.org/zap"
)

var (
	// ErrMeasurementMismatch is returned if the report's measurement differs from the expected one.
	ErrMeasurementMismatch = errors.New("measurement mismatch")
	// ErrReportDataMismatch is returned if the report data differs from the expected one.
	ErrReportDataMismatch = errors.New("report data mismatch")
)

// ChainGetter retrieves the HSK and CEK for a chip.
// The returned certificates must be verified against the HRK.
type ChainGetter interface {
	GetChain(ctx context.Context, chipID string) (types.CACertificate, types.CSVCertificate, error)
}

// CSVVerifier is used to verify CSV report responses.
type CSVVerifier struct {
	hrk    types.CACertificate
	chains ChainGetter
	suite  crypto.Suite
	log    *zap.Logger
}

// Option configures a CSVVerifier.
type Option func(*CSVVerifier)

// WithChainGetter sets the source of HSK and CEK certificates, usually a KDS client.
func WithChainGetter(chains ChainGetter) Option {
	return func(v *CSVVerifier) { v.chains = chains }
}

// WithSuite sets the crypto suite used for verification.
func WithSuite(suite crypto.Suite) Option {
	return func(v *CSVVerifier) { v.suite = suite }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(v *CSVVerifier) { v.log = log }
}

// New creates a new CSVVerifier trusting the given HRK.
func New(hrk types.CACertificate, opts ...Option) (*CSVVerifier, error) {
	v := &CSVVerifier{
		hrk:   hrk,
		suite: crypto.Default,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := verifyHRK(v.suite, &v.hrk); err != nil {
		return nil, fmt.Errorf("verifying HRK: %w", err)
	}
	return v, nil
}

// VerifyOptions are the caller's inputs to a verification.
type VerifyOptions struct {
	// HSK and CEK are the chip's certificates. If nil, they are retrieved with the verifier's ChainGetter.
	HSK *types.CACertificate
	CEK *types.CSVCertificate
	// Measurement is the expected launch measurement. It is not checked if nil.
	Measurement *[32]byte
	// ReportData is the expected report data. It is not checked if nil.
	ReportData *[types.ReportDataSize]byte
}

// Result is the verified content of a report response.
type Result struct {
	ChipID           string
	Policy           types.GuestPolicy
	Measurement      [32]byte
	ReportData       [types.ReportDataSize]byte
	UserPubKeyDigest [32]byte
	VMID             [16]byte
	VMVersion        [16]byte
	PEK              types.CSVCertificate
}

// Verify verifies a report response to a request made with mnonce.
//
// This is the high level API function that handles retrieval of the HSK and CEK.
// Use [Verify] on the individual certificates if you want to handle the chain yourself.
func (v *CSVVerifier) Verify(ctx context.Context, rsp types.ReportResponse, mnonce [types.MNonceSize]byte, opts VerifyOptions) (Result, error) {
	report := rsp.Report

	plain, err := rsp.Signer.Verify(v.suite, mnonce, report.Body.MNonce, report.ANonce)
	if err != nil {
		return Result{}, fmt.Errorf("authenticating signer evidence: %w", err)
	}
	chipID := plain.ChipID()
	log := v.log.With(zap.String("chipID", chipID))
	log.Debug("Signer evidence authenticated")

	pek, err := types.ParseCSVCertificate(plain.PEKCert[:])
	if err != nil {
		return Result{}, fmt.Errorf("parsing PEK certificate: %w", err)
	}

	hsk, cek, err := v.chain(ctx, chipID, opts)
	if err != nil {
		return Result{}, err
	}

	if err := verifyHSK(v.suite, &v.hrk, &hsk); err != nil {
		return Result{}, fmt.Errorf("verifying HSK: %w", err)
	}
	log.Debug("HSK verified")
	if err := verifyLink(v.suite, &hsk, &cek, types.UsageCEK); err != nil {
		return Result{}, fmt.Errorf("verifying CEK: %w", err)
	}
	log.Debug("CEK verified")
	if err := verifyLink(v.suite, &cek, &pek, types.UsagePEK); err != nil {
		return Result{}, fmt.Errorf("verifying PEK: %w", err)
	}
	log.Debug("PEK verified")
	if err := VerifyWithSuite(v.suite, &pek, &report); err != nil {
		return Result{}, fmt.Errorf("verifying attestation report: %w", err)
	}
	log.Debug("Attestation report verified")

	body := report.Body
	if opts.Measurement != nil && !bytes.Equal(opts.Measurement[:], body.Measure[:]) {
		return Result{}, fmt.Errorf("%w: expected %x, got %x", ErrMeasurementMismatch, *opts.Measurement, body.Measure)
	}
	if opts.ReportData != nil && !bytes.Equal(opts.ReportData[:], body.ReportData[:]) {
		return Result{}, fmt.Errorf("%w: expected %x, got %x", ErrReportDataMismatch, *opts.ReportData, body.ReportData)
	}

	log.Info("Report response verified")
	return Result{
		ChipID:           chipID,
		Policy:           report.PlainPolicy(),
		Measurement:      body.Measure,
		ReportData:       body.ReportData,
		UserPubKeyDigest: body.UserPubKeyDigest,
		VMID:             body.VMID,
		VMVersion:        body.VMVersion,
		PEK:              pek,
	}, nil
}

// chain returns the HSK and CEK from opts, or retrieves them for the chip.
func (v *CSVVerifier) chain(ctx context.Context, chipID string, opts VerifyOptions) (types.CACertificate, types.CSVCertificate, error) {
	if opts.HSK != nil && opts.CEK != nil {
		return *opts.HSK, *opts.CEK, nil
	}
	if v.chains == nil {
		return types.CACertificate{}, types.CSVCertificate{}, errors.New("no HSK and CEK given, and no source to retrieve them configured")
	}

	hsk, cek, err := v.chains.GetChain(ctx, chipID)
	if err != nil {
		return types.CACertificate{}, types.CSVCertificate{}, fmt.Errorf("getting HSK and CEK for chip %q: %w", chipID, err)
	}
	if opts.HSK != nil {
		hsk = *opts.HSK
	}
	if opts.CEK != nil {
		cek = *opts.CEK
	}
	return hsk, cek, nil
}
