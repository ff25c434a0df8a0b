package types

import (
	"encoding/binary"
	"fmt"

	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
)

const (
	// BodySize is the size of the signed part of an attestation report.
	BodySize = 32 + 16 + 16 + ReportDataSize + MNonceSize + 32 + 4
	// SignatureSize is the size of a firmware signature block.
	SignatureSize = 2*crypto.CoordinateSize + 368
	// AttestationReportSize is the size of an attestation report.
	AttestationReportSize = BodySize + 4 + 4 + 4 + SignatureSize
	// SignerEvidenceSize is the size of the signer evidence following the report.
	SignerEvidenceSize = CSVCertificateSize + SerialNumberSize + 32 + crypto.DigestSize
	// PageSize is the size of a report response.
	PageSize = 4096
	// ReportResponsePaddingSize is the zero padding filling the report response to a page.
	ReportResponsePaddingSize = PageSize - (AttestationReportSize + SignerEvidenceSize)
	// ReportResponseSize is the size of a report response.
	ReportResponseSize = AttestationReportSize + SignerEvidenceSize + ReportResponsePaddingSize
)

// Compile-time check that the report and signer evidence fit into a page,
// and that the padded response fills exactly one page.
var (
	_ [ReportResponsePaddingSize]struct{}
	_ [ReportResponseSize - PageSize]struct{}
	_ [PageSize - ReportResponseSize]struct{}
)

// Body is the part of the attestation report covered by the signature.
type Body struct {
	UserPubKeyDigest [32]byte
	VMID             [16]byte
	VMVersion        [16]byte
	ReportData       [ReportDataSize]byte
	MNonce           [MNonceSize]byte // masked with ANonce
	Measure          [32]byte
	Policy           GuestPolicy // masked with ANonce
}

// Signature is a firmware signature: little-endian r and s, followed by reserved bytes.
type Signature struct {
	R        [crypto.CoordinateSize]byte
	S        [crypto.CoordinateSize]byte
	Reserved [368]byte
}

// DER returns the ASN.1 DER encoding of the signature.
func (s Signature) DER() ([]byte, error) {
	return crypto.SignatureToDER(s.R, s.S)
}

// AttestationReport is the attestation report generated by the firmware.
type AttestationReport struct {
	Body     Body
	SigUsage uint32
	SigAlgo  uint32
	// ANonce is chosen by the firmware per report and masks the nonce, the policy, and the signer evidence.
	ANonce    uint32
	Signature Signature
}

// PlainNonce returns the report's nonce with the ANonce mask removed.
func (r *AttestationReport) PlainNonce() [MNonceSize]byte {
	nonce := r.Body.MNonce
	crypto.Keystream(nonce[:], r.ANonce)
	return nonce
}

// PlainPolicy returns the report's guest policy with the ANonce mask removed.
func (r *AttestationReport) PlainPolicy() GuestPolicy {
	return r.Body.Policy.Xor(r.ANonce)
}

// SignedBody returns the bytes covered by the report signature.
func (r *AttestationReport) SignedBody() ([]byte, error) {
	body := r.Body.Marshal()
	return body[:], nil
}

// SignatureFor returns the DER encoded report signature if it was made with a key of the given usage.
func (r *AttestationReport) SignatureFor(usage Usage) ([]byte, error) {
	if usage != UsagePEK {
		return nil, fmt.Errorf("%w: attestation reports are signed by the PEK, not %s", crypto.ErrBadSignature, usage)
	}
	return r.Signature.DER()
}

// ReportResponse is the response of the firmware to a report request, padded to a page.
type ReportResponse struct {
	Report AttestationReport
	Signer SignerEvidence
}

// ParseReportResponse parses a report response. The input must be exactly one page.
func ParseReportResponse(raw []byte) (ReportResponse, error) {
	if len(raw) != ReportResponseSize {
		return ReportResponse{}, fmt.Errorf("report response must be %d bytes, got %d bytes", ReportResponseSize, len(raw))
	}

	report, err := ParseAttestationReport(raw[0:AttestationReportSize])
	if err != nil {
		return ReportResponse{}, fmt.Errorf("parsing attestation report: %w", err)
	}
	signer, err := ParseSignerEvidence(raw[AttestationReportSize : AttestationReportSize+SignerEvidenceSize])
	if err != nil {
		return ReportResponse{}, fmt.Errorf("parsing signer evidence: %w", err)
	}

	return ReportResponse{Report: report, Signer: signer}, nil
}

// ParseAttestationReport parses an attestation report.
func ParseAttestationReport(raw []byte) (AttestationReport, error) {
	if len(raw) != AttestationReportSize {
		return AttestationReport{}, fmt.Errorf("attestation report must be %d bytes, got %d bytes", AttestationReportSize, len(raw))
	}

	return AttestationReport{
		Body:     parseBody(raw[0:180]),
		SigUsage: binary.LittleEndian.Uint32(raw[180:184]),
		SigAlgo:  binary.LittleEndian.Uint32(raw[184:188]),
		ANonce:   binary.LittleEndian.Uint32(raw[188:192]),
		Signature: Signature{
			R:        [crypto.CoordinateSize]byte(raw[192:264]),
			S:        [crypto.CoordinateSize]byte(raw[264:336]),
			Reserved: [368]byte(raw[336:704]),
		},
	}, nil
}

// parseBody parses the 180 byte report body. The caller checks the length.
func parseBody(raw []byte) Body {
	return Body{
		UserPubKeyDigest: [32]byte(raw[0:32]),
		VMID:             [16]byte(raw[32:48]),
		VMVersion:        [16]byte(raw[48:64]),
		ReportData:       [ReportDataSize]byte(raw[64:128]),
		MNonce:           [MNonceSize]byte(raw[128:144]),
		Measure:          [32]byte(raw[144:176]),
		Policy:           GuestPolicy(binary.LittleEndian.Uint32(raw[176:180])),
	}
}
