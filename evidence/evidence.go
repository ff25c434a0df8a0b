// Package evidence encodes the evidence a guest hands to a verifier.
//
// A bundle carries the firmware's report response, the nonce the guest owner placed in the request,
// and optionally the chip's HSK and CEK so the verifier does not need to contact the KDS.
// Bundles use the protocol buffer wire format:
//
//	message Bundle {
//	  bytes  response = 1; // 4096 bytes
//	  bytes  mnonce   = 2; // 16 bytes
//	  bytes  hsk      = 3; // optional, 832 bytes
//	  bytes  cek      = 4; // optional, 2084 bytes
//	  uint64 version  = 5;
//	}
package evidence

import (
	"errors"
	"fmt"

	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// Version is the bundle format version written by Marshal.
const Version = 1

const (
	fieldResponse protowire.Number = 1
	fieldMNonce   protowire.Number = 2
	fieldHSK      protowire.Number = 3
	fieldCEK      protowire.Number = 4
	fieldVersion  protowire.Number = 5
)

// Bundle is the evidence of one attestation.
type Bundle struct {
	Response types.ReportResponse
	MNonce   [types.MNonceSize]byte
	HSK      *types.CACertificate
	CEK      *types.CSVCertificate
}

// Marshal encodes the bundle.
func (b *Bundle) Marshal() []byte {
	response := b.Response.Marshal()

	var raw []byte
	raw = protowire.AppendTag(raw, fieldVersion, protowire.VarintType)
	raw = protowire.AppendVarint(raw, Version)
	raw = protowire.AppendTag(raw, fieldResponse, protowire.BytesType)
	raw = protowire.AppendBytes(raw, response[:])
	raw = protowire.AppendTag(raw, fieldMNonce, protowire.BytesType)
	raw = protowire.AppendBytes(raw, b.MNonce[:])
	if b.HSK != nil {
		hsk := b.HSK.Marshal()
		raw = protowire.AppendTag(raw, fieldHSK, protowire.BytesType)
		raw = protowire.AppendBytes(raw, hsk[:])
	}
	if b.CEK != nil {
		cek := b.CEK.Marshal()
		raw = protowire.AppendTag(raw, fieldCEK, protowire.BytesType)
		raw = protowire.AppendBytes(raw, cek[:])
	}
	return raw
}

// Unmarshal decodes a bundle. Unknown fields are skipped.
func Unmarshal(raw []byte) (Bundle, error) {
	var (
		bundle                 Bundle
		version                uint64
		hasResponse, hasMNonce bool
		hasVersion             bool
	)

	for len(raw) > 0 {
		num, typ, n := protowire.ConsumeTag(raw)
		if n < 0 {
			return Bundle{}, fmt.Errorf("decoding field tag: %w", protowire.ParseError(n))
		}
		raw = raw[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(raw)
			if n < 0 {
				return Bundle{}, fmt.Errorf("decoding version: %w", protowire.ParseError(n))
			}
			raw = raw[n:]
			if hasVersion {
				return Bundle{}, errors.New("bundle has more than one version field")
			}
			version, hasVersion = v, true

		case num >= fieldResponse && num <= fieldCEK && typ == protowire.BytesType:
			value, n := protowire.ConsumeBytes(raw)
			if n < 0 {
				return Bundle{}, fmt.Errorf("decoding field %d: %w", num, protowire.ParseError(n))
			}
			raw = raw[n:]
			if err := bundle.setField(num, value); err != nil {
				return Bundle{}, err
			}
			hasResponse = hasResponse || num == fieldResponse
			hasMNonce = hasMNonce || num == fieldMNonce

		default:
			n := protowire.ConsumeFieldValue(num, typ, raw)
			if n < 0 {
				return Bundle{}, fmt.Errorf("skipping field %d: %w", num, protowire.ParseError(n))
			}
			raw = raw[n:]
		}
	}

	if !hasVersion {
		return Bundle{}, errors.New("bundle has no version")
	}
	if version != Version {
		return Bundle{}, fmt.Errorf("unsupported bundle version %d", version)
	}
	if !hasResponse {
		return Bundle{}, errors.New("bundle has no report response")
	}
	if !hasMNonce {
		return Bundle{}, errors.New("bundle has no nonce")
	}
	return bundle, nil
}

func (b *Bundle) setField(num protowire.Number, value []byte) error {
	switch num {
	case fieldResponse:
		rsp, err := types.ParseReportResponse(value)
		if err != nil {
			return fmt.Errorf("parsing report response: %w", err)
		}
		b.Response = rsp
	case fieldMNonce:
		if len(value) != types.MNonceSize {
			return fmt.Errorf("nonce must be %d bytes, got %d bytes", types.MNonceSize, len(value))
		}
		b.MNonce = [types.MNonceSize]byte(value)
	case fieldHSK:
		hsk, err := types.ParseCACertificate(value)
		if err != nil {
			return fmt.Errorf("parsing HSK: %w", err)
		}
		b.HSK = &hsk
	case fieldCEK:
		cek, err := types.ParseCSVCertificate(value)
		if err != nil {
			return fmt.Errorf("parsing CEK: %w", err)
		}
		b.CEK = &cek
	}
	return nil
}
