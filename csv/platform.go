package csv

import (
	"fmt"

	"github.com/edgelesssys/go-csv-qpl/verification/types"
)

// IDSize is the size of the buffer GetID reads the chip id into.
const IDSize = 64

// CertChain is the platform certificate chain exported with the PDH.
type CertChain struct {
	PEK types.CSVCertificate
	OCA types.CSVCertificate
	CEK types.CSVCertificate
}

// Platform issues the platform management commands.
type Platform struct {
	d Dispatcher
}

// NewPlatform returns a Platform issuing commands through d.
func NewPlatform(d Dispatcher) *Platform {
	return &Platform{d: d}
}

// Reset resets the platform's persistent state.
func (p *Platform) Reset() error {
	if err := Issue(p.d, From(PlatformReset{})); err != nil {
		return fmt.Errorf("resetting platform: %w", err)
	}
	return nil
}

// Status returns the status of the platform.
func (p *Platform) Status() (PlatformStatus, error) {
	cmd := FromMut(&PlatformStatus{})
	if err := Issue(p.d, cmd); err != nil {
		return PlatformStatus{}, fmt.Errorf("reading platform status: %w", err)
	}
	return *cmd.Payload(), nil
}

// GeneratePEK generates a new PEK.
func (p *Platform) GeneratePEK() error {
	if err := Issue(p.d, From(PEKGen{})); err != nil {
		return fmt.Errorf("generating PEK: %w", err)
	}
	return nil
}

// GeneratePDH generates a new PDH.
func (p *Platform) GeneratePDH() error {
	if err := Issue(p.d, From(PDHGen{})); err != nil {
		return fmt.Errorf("generating PDH: %w", err)
	}
	return nil
}

// PEKCSR returns a certificate signing request for the PEK.
func (p *Platform) PEKCSR() (types.CSVCertificate, error) {
	cmd := FromMut(&PEKCSR{Buffer: make([]byte, types.CSVCertificateSize)})
	if err := Issue(p.d, cmd); err != nil {
		return types.CSVCertificate{}, fmt.Errorf("requesting PEK CSR: %w", err)
	}

	csr, err := types.ParseCSVCertificate(cmd.Payload().Buffer)
	if err != nil {
		return types.CSVCertificate{}, fmt.Errorf("parsing PEK CSR: %w", err)
	}
	return csr, nil
}

// PDHCertExport exports the PDH certificate and the platform certificate chain.
func (p *Platform) PDHCertExport() (types.CSVCertificate, CertChain, error) {
	cmd := FromMut(&PDHCertExport{
		PDH:   make([]byte, types.CSVCertificateSize),
		Chain: make([]byte, 3*types.CSVCertificateSize),
	})
	if err := Issue(p.d, cmd); err != nil {
		return types.CSVCertificate{}, CertChain{}, fmt.Errorf("exporting PDH certificate: %w", err)
	}
	export := cmd.Payload()

	pdh, err := types.ParseCSVCertificate(export.PDH)
	if err != nil {
		return types.CSVCertificate{}, CertChain{}, fmt.Errorf("parsing PDH certificate: %w", err)
	}
	if len(export.Chain) != 3*types.CSVCertificateSize {
		return types.CSVCertificate{}, CertChain{}, fmt.Errorf("certificate chain must be %d bytes, got %d bytes", 3*types.CSVCertificateSize, len(export.Chain))
	}

	var chain CertChain
	for i, cert := range []*types.CSVCertificate{&chain.PEK, &chain.OCA, &chain.CEK} {
		raw := export.Chain[i*types.CSVCertificateSize : (i+1)*types.CSVCertificateSize]
		if *cert, err = types.ParseCSVCertificate(raw); err != nil {
			return types.CSVCertificate{}, CertChain{}, fmt.Errorf("parsing certificate %d of the chain: %w", i, err)
		}
	}
	return pdh, chain, nil
}

// PEKCertImport imports a PEK certificate signed by the owner's OCA.
func (p *Platform) PEKCertImport(pek, oca types.CSVCertificate) error {
	pekRaw := pek.Marshal()
	ocaRaw := oca.Marshal()
	if err := Issue(p.d, From(PEKCertImport{PEK: pekRaw[:], OCA: ocaRaw[:]})); err != nil {
		return fmt.Errorf("importing PEK certificate: %w", err)
	}
	return nil
}

// GetID returns the chip id. It is the serial number the KDS issues certificates for.
func (p *Platform) GetID() (string, error) {
	cmd := FromMut(&GetID{Buffer: make([]byte, IDSize)})
	if err := Issue(p.d, cmd); err != nil {
		return "", fmt.Errorf("reading chip id: %w", err)
	}
	return trimNUL(cmd.Payload().Buffer), nil
}

func trimNUL(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
