/*
# CSV Attestation Data Types

This package contains data types and parsing functions used for Hygon CSV attestation.

## Report Response Format

	The guest requests a report by handing a 4096 byte page to the firmware.
	On input the page starts with a ReportRequest, on output it holds a ReportResponse:


	        ReportRequest                          ReportResponse
	     NewReportRequest                       ParseReportResponse
	┌─────────────────────────┐      ┌──────────────────────────────────────────┐
	│          Data           │      │            AttestationReport             │
	│       (64 bytes)        │      │ ┌──────────────────────────────────────┐ │
	├─────────────────────────┤      │ │                Body                  │ │
	│         MNonce          │      │ │             (180 bytes)              │ │
	│       (16 bytes)        │      │ │  signed by the PEK, MNonce and       │ │
	├─────────────────────────┤      │ │  Policy masked with ANonce           │ │
	│   Hash (SM3 over Data   │      │ ├──────────────────────────────────────┤ │
	│   and MNonce, 32 bytes) │      │ │  SigUsage, SigAlgo, ANonce (12 bytes)│ │
	└─────────────────────────┘      │ ├──────────────────────────────────────┤ │
	                                 │ │   Signature r, s (512 bytes)         │ │
	                                 │ └──────────────────────────────────────┘ │
	                                 ├──────────────────────────────────────────┤
	                                 │              SignerEvidence              │
	                                 │ ┌──────────────────────────────────────┐ │
	                                 │ │  PEK certificate (2084 bytes)        │ │
	                                 │ │  Serial number (64 bytes)            │ │
	                                 │ │  both XOR masked with ANonce         │ │
	                                 │ ├──────────────────────────────────────┤ │
	                                 │ │  Reserved (32 bytes)                 │ │
	                                 │ ├──────────────────────────────────────┤ │
	                                 │ │  HMAC-SM3 over the masked bytes,     │ │
	                                 │ │  keyed with MNonce (32 bytes)        │ │
	                                 │ └──────────────────────────────────────┘ │
	                                 ├──────────────────────────────────────────┤
	                                 │          Padding (1180 bytes)            │
	                                 └──────────────────────────────────────────┘

## Certificate Hierarchy

	HRK (self-signed, CA format) ──signs──► HSK (CA format) ──signs──► CEK (CSV format)
	CEK ──signs──► PEK (CSV format, optionally co-signed by the OCA) ──signs──► AttestationReport

All multi-byte integers are little-endian.
*/
package types
