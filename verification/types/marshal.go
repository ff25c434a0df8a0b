package types

import (
	"encoding/binary"
)

// Marshal serializes a ReportRequest into the layout expected by the firmware.
func (r *ReportRequest) Marshal() [ReportRequestSize]byte {
	var result [ReportRequestSize]byte
	copy(result[0:64], r.Data[:])
	copy(result[64:80], r.MNonce[:])
	copy(result[80:112], r.Hash[:])
	return result
}

// Marshal serializes a report Body. These are the bytes signed by the PEK.
func (b *Body) Marshal() [BodySize]byte {
	var result [BodySize]byte
	copy(result[0:32], b.UserPubKeyDigest[:])
	copy(result[32:48], b.VMID[:])
	copy(result[48:64], b.VMVersion[:])
	copy(result[64:128], b.ReportData[:])
	copy(result[128:144], b.MNonce[:])
	copy(result[144:176], b.Measure[:])
	binary.LittleEndian.PutUint32(result[176:180], uint32(b.Policy))
	return result
}

// Marshal serializes a firmware signature block.
func (s *Signature) Marshal() [SignatureSize]byte {
	var result [SignatureSize]byte
	copy(result[0:72], s.R[:])
	copy(result[72:144], s.S[:])
	copy(result[144:512], s.Reserved[:])
	return result
}

// Marshal serializes an AttestationReport.
func (r *AttestationReport) Marshal() [AttestationReportSize]byte {
	body := r.Body.Marshal()
	sig := r.Signature.Marshal()

	var result [AttestationReportSize]byte
	copy(result[0:180], body[:])
	binary.LittleEndian.PutUint32(result[180:184], r.SigUsage)
	binary.LittleEndian.PutUint32(result[184:188], r.SigAlgo)
	binary.LittleEndian.PutUint32(result[188:192], r.ANonce)
	copy(result[192:704], sig[:])
	return result
}

// Marshal serializes SignerEvidence.
func (s *SignerEvidence) Marshal() [SignerEvidenceSize]byte {
	var result [SignerEvidenceSize]byte
	copy(result[0:2084], s.PEKCert[:])
	copy(result[2084:2148], s.SerialNumber[:])
	copy(result[2148:2180], s.Reserved[:])
	copy(result[2180:2212], s.MAC[:])
	return result
}

// Marshal serializes a ReportResponse into a zero padded page.
func (r *ReportResponse) Marshal() [ReportResponseSize]byte {
	report := r.Report.Marshal()
	signer := r.Signer.Marshal()

	var result [ReportResponseSize]byte
	copy(result[0:AttestationReportSize], report[:])
	copy(result[AttestationReportSize:AttestationReportSize+SignerEvidenceSize], signer[:])
	return result
}

// Marshal serializes a CSV certificate.
func (c *CSVCertificate) Marshal() [CSVCertificateSize]byte {
	var result [CSVCertificateSize]byte
	binary.LittleEndian.PutUint32(result[0:4], c.Version)
	result[4] = c.APIMajor
	result[5] = c.APIMinor
	binary.LittleEndian.PutUint16(result[6:8], c.Reserved)
	binary.LittleEndian.PutUint32(result[8:12], uint32(c.KeyUsage))
	binary.LittleEndian.PutUint32(result[12:16], uint32(c.KeyAlgo))

	binary.LittleEndian.PutUint32(result[16:20], c.PubKey.Curve)
	copy(result[20:92], c.PubKey.QX[:])
	copy(result[92:164], c.PubKey.QY[:])
	binary.LittleEndian.PutUint16(result[164:166], c.PubKey.UIDSize)
	copy(result[166:420], c.PubKey.UserID[:])
	copy(result[420:1044], c.PubKey.Reserved[:])

	for i, offset := range []int{1044, 1564} {
		sig := c.Signatures[i].Signature.Marshal()
		binary.LittleEndian.PutUint32(result[offset:offset+4], uint32(c.Signatures[i].Usage))
		binary.LittleEndian.PutUint32(result[offset+4:offset+8], uint32(c.Signatures[i].Algo))
		copy(result[offset+8:offset+520], sig[:])
	}
	return result
}

// Marshal serializes a CA certificate.
func (c *CACertificate) Marshal() [CACertificateSize]byte {
	var result [CACertificateSize]byte
	binary.LittleEndian.PutUint32(result[0:4], c.Version)
	copy(result[4:20], c.KeyID[:])
	copy(result[20:36], c.CertifyingID[:])
	binary.LittleEndian.PutUint32(result[36:40], uint32(c.KeyUsage))
	copy(result[40:56], c.Reserved1[:])
	binary.LittleEndian.PutUint32(result[56:60], c.Curve)
	copy(result[60:132], c.QX[:])
	copy(result[132:204], c.QY[:])
	binary.LittleEndian.PutUint16(result[204:206], c.UIDSize)
	copy(result[206:460], c.UserIDData[:])
	copy(result[460:568], c.Reserved2[:])
	copy(result[568:640], c.SigR[:])
	copy(result[640:712], c.SigS[:])
	copy(result[712:832], c.Reserved3[:])
	return result
}
