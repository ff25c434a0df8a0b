package types

import (
	"fmt"
)

// GuestPolicy is the policy the guest owner binds to a guest at launch.
// The firmware restricts what the hypervisor may do with the guest according to the policy,
// and the policy also sets minimum firmware versions a guest may be migrated to.
//
//	| Bit(s) | Name        | Description                                                               |
//	|--------|-------------|---------------------------------------------------------------------------|
//	| 0      | NODBG       | Debugging of the guest is disallowed                                      |
//	| 1      | NOKS        | Sharing keys with other guests is disallowed                              |
//	| 2      | ES          | CSV2 is required                                                          |
//	| 3      | NOSEND      | Sending the guest to another platform is disallowed                       |
//	| 4      | DOMAIN      | The guest must not be sent to a platform outside the domain               |
//	| 5      | CSV         | The guest must not be sent to a platform that is not CSV capable          |
//	| 6      | CSV3        | The guest must not be sent to a platform that is not CSV3 capable         |
//	| 7      | ASID_REUSE  | Sharing ASIDs with other guests of the same user is allowed               |
//	| 11:8   | HSK_VERSION | The guest must not be sent to a platform with a lower HSK version         |
//	| 15:12  | CEK_VERSION | The guest must not be sent to a platform with a lower CEK version         |
//	| 23:16  | API_MAJOR   | The guest must not be sent to a platform with a lower API major version   |
//	| 31:24  | API_MINOR   | The guest must not be sent to a platform with a lower API minor version   |
//
// Any 32 bit value is a valid policy word. Combinations are not validated.
type GuestPolicy uint32

// Policy field names.
const (
	PolicyNoDebug      = "nodbg"
	PolicyNoKeySharing = "noks"
	PolicyES           = "es"
	PolicyNoSend       = "nosend"
	PolicyDomain       = "domain"
	PolicyCSV          = "csv"
	PolicyCSV3         = "csv3"
	PolicyASIDReuse    = "asid_reuse"
	PolicyHSKVersion   = "hsk_version"
	PolicyCEKVersion   = "cek_version"
	PolicyAPIMajor     = "api_major"
	PolicyAPIMinor     = "api_minor"
)

// policyField is a bit range [low, high] of the policy word.
type policyField struct {
	name      string
	low, high uint
}

func (f policyField) mask() uint32 {
	return (uint32(1)<<(f.high-f.low+1) - 1) << f.low
}

var policyLayout = []policyField{
	{PolicyNoDebug, 0, 0},
	{PolicyNoKeySharing, 1, 1},
	{PolicyES, 2, 2},
	{PolicyNoSend, 3, 3},
	{PolicyDomain, 4, 4},
	{PolicyCSV, 5, 5},
	{PolicyCSV3, 6, 6},
	{PolicyASIDReuse, 7, 7},
	{PolicyHSKVersion, 8, 11},
	{PolicyCEKVersion, 12, 15},
	{PolicyAPIMajor, 16, 23},
	{PolicyAPIMinor, 24, 31},
}

func lookupPolicyField(name string) (policyField, error) {
	for _, f := range policyLayout {
		if f.name == name {
			return f, nil
		}
	}
	return policyField{}, fmt.Errorf("unknown guest policy field %q", name)
}

func (p GuestPolicy) get(f policyField) uint32 {
	return (uint32(p) & f.mask()) >> f.low
}

func (p GuestPolicy) set(f policyField, v uint32) GuestPolicy {
	return GuestPolicy((uint32(p) &^ f.mask()) | ((v << f.low) & f.mask()))
}

// Field returns the value of the named field.
func (p GuestPolicy) Field(name string) (uint32, error) {
	f, err := lookupPolicyField(name)
	if err != nil {
		return 0, err
	}
	return p.get(f), nil
}

// WithField returns a copy of the policy with the named field set to v.
func (p GuestPolicy) WithField(name string, v uint32) (GuestPolicy, error) {
	f, err := lookupPolicyField(name)
	if err != nil {
		return p, err
	}
	if v > f.mask()>>f.low {
		return p, fmt.Errorf("value %d does not fit into guest policy field %q (bits %d-%d)", v, name, f.low, f.high)
	}
	return p.set(f, v), nil
}

// NoDebug reports whether debugging of the guest is disallowed.
func (p GuestPolicy) NoDebug() bool { return p&(1<<0) != 0 }

// NoKeySharing reports whether sharing keys with other guests is disallowed.
func (p GuestPolicy) NoKeySharing() bool { return p&(1<<1) != 0 }

// ES reports whether CSV2 is required.
func (p GuestPolicy) ES() bool { return p&(1<<2) != 0 }

// NoSend reports whether sending the guest to another platform is disallowed.
func (p GuestPolicy) NoSend() bool { return p&(1<<3) != 0 }

// Domain reports whether the guest is restricted to platforms of the domain.
func (p GuestPolicy) Domain() bool { return p&(1<<4) != 0 }

// CSV reports whether the guest is restricted to CSV capable platforms.
func (p GuestPolicy) CSV() bool { return p&(1<<5) != 0 }

// CSV3 reports whether the guest is restricted to CSV3 capable platforms.
func (p GuestPolicy) CSV3() bool { return p&(1<<6) != 0 }

// ASIDReuse reports whether guests of the same user may share ASIDs.
func (p GuestPolicy) ASIDReuse() bool { return p&(1<<7) != 0 }

// HSKVersion is the minimum HSK version.
func (p GuestPolicy) HSKVersion() uint8 { return uint8(p >> 8 & 0xF) }

// CEKVersion is the minimum CEK version.
func (p GuestPolicy) CEKVersion() uint8 { return uint8(p >> 12 & 0xF) }

// APIMajor is the minimum firmware API major version.
func (p GuestPolicy) APIMajor() uint8 { return uint8(p >> 16) }

// APIMinor is the minimum firmware API minor version.
func (p GuestPolicy) APIMinor() uint8 { return uint8(p >> 24) }

// Xor returns the policy masked with a session nonce.
// The operation is its own inverse.
func (p GuestPolicy) Xor(anonce uint32) GuestPolicy {
	return GuestPolicy(uint32(p) ^ anonce)
}

// PolicyFields is the decoded form of a GuestPolicy.
type PolicyFields struct {
	NoDebug      bool  `json:"nodbg"`
	NoKeySharing bool  `json:"noks"`
	ES           bool  `json:"es"`
	NoSend       bool  `json:"nosend"`
	Domain       bool  `json:"domain"`
	CSV          bool  `json:"csv"`
	CSV3         bool  `json:"csv3"`
	ASIDReuse    bool  `json:"asid_reuse"`
	HSKVersion   uint8 `json:"hsk_version"` // 4 bits
	CEKVersion   uint8 `json:"cek_version"` // 4 bits
	APIMajor     uint8 `json:"api_major"`
	APIMinor     uint8 `json:"api_minor"`
}

// NewGuestPolicy encodes policy fields into a policy word.
// HSKVersion and CEKVersion are truncated to 4 bits.
func NewGuestPolicy(f PolicyFields) GuestPolicy {
	var p GuestPolicy
	flags := []bool{f.NoDebug, f.NoKeySharing, f.ES, f.NoSend, f.Domain, f.CSV, f.CSV3, f.ASIDReuse}
	for i, set := range flags {
		if set {
			p |= 1 << i
		}
	}
	p = p.set(policyLayout[8], uint32(f.HSKVersion))
	p = p.set(policyLayout[9], uint32(f.CEKVersion))
	p = p.set(policyLayout[10], uint32(f.APIMajor))
	p = p.set(policyLayout[11], uint32(f.APIMinor))
	return p
}

// Fields decodes the policy word.
func (p GuestPolicy) Fields() PolicyFields {
	return PolicyFields{
		NoDebug:      p.NoDebug(),
		NoKeySharing: p.NoKeySharing(),
		ES:           p.ES(),
		NoSend:       p.NoSend(),
		Domain:       p.Domain(),
		CSV:          p.CSV(),
		CSV3:         p.CSV3(),
		ASIDReuse:    p.ASIDReuse(),
		HSKVersion:   p.HSKVersion(),
		CEKVersion:   p.CEKVersion(),
		APIMajor:     p.APIMajor(),
		APIMinor:     p.APIMinor(),
	}
}

// String returns a human readable representation of the policy.
func (p GuestPolicy) String() string {
	return fmt.Sprintf("GuestPolicy(%#08x){%+v}", uint32(p), p.Fields())
}
