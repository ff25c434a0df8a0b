package types

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuestPolicyRoundTrip(t *testing.T) {
	assert := assert.New(t)

	words := []uint32{0, 1, 0xFFFFFFFF, 0x80000000, 0x0000FF00, 0x12345678, 0xDEADBEEF}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		words = append(words, rng.Uint32())
	}

	for _, w := range words {
		policy := GuestPolicy(w)
		assert.Equal(policy, NewGuestPolicy(policy.Fields()), "word %#08x", w)

		rebuilt := GuestPolicy(0)
		for _, f := range policyLayout {
			v, err := policy.Field(f.name)
			assert.NoError(err)
			rebuilt, err = rebuilt.WithField(f.name, v)
			assert.NoError(err)
		}
		assert.Equal(policy, rebuilt, "word %#08x", w)
	}
}

func TestGuestPolicyFields(t *testing.T) {
	testCases := map[string]struct {
		policy GuestPolicy
		want   PolicyFields
	}{
		"zero": {
			policy: 0,
			want:   PolicyFields{},
		},
		"nodbg": {
			policy: 0x1,
			want:   PolicyFields{NoDebug: true},
		},
		"noks": {
			policy: 0x2,
			want:   PolicyFields{NoKeySharing: true},
		},
		"es": {
			policy: 0x4,
			want:   PolicyFields{ES: true},
		},
		"nosend": {
			policy: 0x8,
			want:   PolicyFields{NoSend: true},
		},
		"domain": {
			policy: 0x10,
			want:   PolicyFields{Domain: true},
		},
		"csv": {
			policy: 0x20,
			want:   PolicyFields{CSV: true},
		},
		"csv3": {
			policy: 0x40,
			want:   PolicyFields{CSV3: true},
		},
		"asid reuse": {
			policy: 0x80,
			want:   PolicyFields{ASIDReuse: true},
		},
		"hsk version": {
			policy: 0xA00,
			want:   PolicyFields{HSKVersion: 0xA},
		},
		"cek version": {
			policy: 0x5000,
			want:   PolicyFields{CEKVersion: 0x5},
		},
		"api major": {
			policy: 0x00AB0000,
			want:   PolicyFields{APIMajor: 0xAB},
		},
		"api minor": {
			policy: 0xCD000000,
			want:   PolicyFields{APIMinor: 0xCD},
		},
		"all set": {
			policy: 0xFFFFFFFF,
			want: PolicyFields{
				NoDebug: true, NoKeySharing: true, ES: true, NoSend: true,
				Domain: true, CSV: true, CSV3: true, ASIDReuse: true,
				HSKVersion: 0xF, CEKVersion: 0xF, APIMajor: 0xFF, APIMinor: 0xFF,
			},
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tc.want, tc.policy.Fields())
			assert.Equal(tc.policy, NewGuestPolicy(tc.want))
		})
	}
}

func TestGuestPolicyFieldIndependence(t *testing.T) {
	assert := assert.New(t)

	// Setting every other bit must not leak into a field's value.
	for _, f := range policyLayout {
		inverse := GuestPolicy(^f.mask())
		v, err := inverse.Field(f.name)
		assert.NoError(err)
		assert.Zero(v, f.name)

		only := GuestPolicy(f.mask())
		v, err = only.Field(f.name)
		assert.NoError(err)
		assert.Equal(f.mask()>>f.low, v, f.name)
	}
}

func TestGuestPolicyWithField(t *testing.T) {
	assert := assert.New(t)

	p, err := GuestPolicy(0).WithField(PolicyCEKVersion, 0xF)
	assert.NoError(err)
	assert.Equal(GuestPolicy(0xF000), p)

	_, err = p.WithField(PolicyCEKVersion, 0x10)
	assert.Error(err)

	_, err = p.WithField("unknown", 1)
	assert.Error(err)

	_, err = p.Field("unknown")
	assert.Error(err)
}

func TestGuestPolicyXor(t *testing.T) {
	assert := assert.New(t)

	policy := NewGuestPolicy(PolicyFields{NoDebug: true, NoKeySharing: true, APIMajor: 1, APIMinor: 2})
	masked := policy.Xor(0xCAFEBABE)
	assert.NotEqual(policy, masked)
	assert.Equal(policy, masked.Xor(0xCAFEBABE))
	assert.Equal(policy, policy.Xor(0))
}
