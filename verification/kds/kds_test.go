package kds

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/edgelesssys/go-csv-qpl/blobs"
	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	testclock "k8s.io/utils/clock/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGetChain(t *testing.T) {
	chain, err := blobs.NewChain(rand.Reader)
	require.NoError(t, err)
	other, err := blobs.NewChain(rand.Reader)
	require.NoError(t, err)

	testCases := map[string]struct {
		api     *fakeAPI
		wantErr error
		fail    bool
	}{
		"success": {
			api: &fakeAPI{response: chain.KDSResponse()},
		},
		"trailing bytes are ignored": {
			api: &fakeAPI{response: append(chain.KDSResponse(), 0x00, 0x01)},
		},
		"request error": {
			api:  &fakeAPI{requestErr: errors.New("failed")},
			fail: true,
		},
		"short response": {
			api:  &fakeAPI{response: chain.KDSResponse()[:responseSize-1]},
			fail: true,
		},
		"chain of another root": {
			api:     &fakeAPI{response: other.KDSResponse()},
			wantErr: crypto.ErrBadSignature,
		},
		"CEK modified": {
			api: &fakeAPI{response: func() []byte {
				raw := chain.KDSResponse()
				raw[responseSize-1000] ^= 0x01
				return raw
			}()},
			wantErr: crypto.ErrBadSignature,
		},
		"HSK modified": {
			api: &fakeAPI{response: func() []byte {
				raw := chain.KDSResponse()
				raw[100] ^= 0x01
				return raw
			}()},
			wantErr: crypto.ErrBadSignature,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			client := newTestClient(t, chain, tc.api, testclock.NewFakeClock(time.Now()))
			hsk, cek, err := client.GetChain(context.Background(), blobs.DefaultChipID)
			if tc.fail || tc.wantErr != nil {
				assert.Error(err)
				if tc.wantErr != nil {
					assert.ErrorIs(err, tc.wantErr)
				}
				assert.Empty(client.cache)
				return
			}

			assert.NoError(err)
			assert.Equal(chain.HSK, hsk)
			assert.Equal(chain.CEK, cek)
			require.Len(t, tc.api.requests, 1)
			assert.Equal(blobs.DefaultChipID, tc.api.requests[0].Query().Get(chipQuery))
		})
	}
}

func TestGetChainCache(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	chain, err := blobs.NewChain(rand.Reader)
	require.NoError(err)
	api := &fakeAPI{response: chain.KDSResponse()}
	clock := testclock.NewFakeClock(time.Now())
	client := newTestClient(t, chain, api, clock)
	ctx := context.Background()

	_, _, err = client.GetChain(ctx, "chip-a")
	require.NoError(err)
	_, _, err = client.GetChain(ctx, "chip-a")
	require.NoError(err)
	assert.Len(api.requests, 1)

	// chips are cached separately
	_, _, err = client.GetChain(ctx, "chip-b")
	require.NoError(err)
	assert.Len(api.requests, 2)

	clock.Step(DefaultCacheTTL - time.Second)
	_, _, err = client.GetChain(ctx, "chip-a")
	require.NoError(err)
	assert.Len(api.requests, 2)

	clock.Step(time.Second)
	_, _, err = client.GetChain(ctx, "chip-a")
	require.NoError(err)
	assert.Len(api.requests, 3)
}

func TestGetChainCacheDisabled(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	chain, err := blobs.NewChain(rand.Reader)
	require.NoError(err)
	api := &fakeAPI{response: chain.KDSResponse()}
	client := newTestClient(t, chain, api, testclock.NewFakeClock(time.Now()))
	WithCacheTTL(0)(client)

	for i := 0; i < 3; i++ {
		_, _, err := client.GetChain(context.Background(), blobs.DefaultChipID)
		require.NoError(err)
	}
	assert.Len(api.requests, 3)
}

func TestGetChainHTTP(t *testing.T) {
	chain, err := blobs.NewChain(rand.Reader)
	require.NoError(t, err)

	testCases := map[string]struct {
		handler http.HandlerFunc
		wantErr bool
	}{
		"success": {
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get(chipQuery) != blobs.DefaultChipID {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				_, _ = w.Write(chain.KDSResponse())
			},
		},
		"not found": {
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr: true,
		},
		"empty body": {
			handler: func(w http.ResponseWriter, _ *http.Request) {},
			wantErr: true,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			server := httptest.NewServer(tc.handler)
			defer server.Close()

			client, err := New(chain.HRK, server.URL+"/hsk_cek", WithHTTPClient(server.Client()), WithLogger(zaptest.NewLogger(t)))
			require.NoError(err)

			hsk, cek, err := client.GetChain(context.Background(), blobs.DefaultChipID)
			if tc.wantErr {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(chain.HSK, hsk)
			assert.Equal(chain.CEK, cek)
		})
	}
}

func TestNewInvalidURL(t *testing.T) {
	chain, err := blobs.NewChain(rand.Reader)
	require.NoError(t, err)

	_, err = New(chain.HRK, "://no-scheme")
	assert.Error(t, err)
}

func TestGetChainUsesSuite(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	chain, err := blobs.NewChain(rand.Reader)
	require.NoError(err)

	suite := &countingSuite{}
	client, err := New(chain.HRK, DefaultURL, WithSuite(suite), WithLogger(zaptest.NewLogger(t)))
	require.NoError(err)
	client.api = &fakeAPI{response: chain.KDSResponse()}

	_, _, err = client.GetChain(context.Background(), blobs.DefaultChipID)
	assert.ErrorIs(err, crypto.ErrBadSignature)
	assert.Equal(1, suite.calls)
}

func newTestClient(t *testing.T, chain *blobs.Chain, api kdsAPI, clock *testclock.FakeClock) *Client {
	t.Helper()
	client, err := New(chain.HRK, DefaultURL, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	client.api = api
	client.clock = clock
	return client
}

type fakeAPI struct {
	response   []byte
	requestErr error
	requests   []*url.URL
}

func (f *fakeAPI) getFromKDS(_ context.Context, uri *url.URL) ([]byte, error) {
	f.requests = append(f.requests, uri)
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return f.response, nil
}

// countingSuite rejects every signature and counts verification attempts.
type countingSuite struct {
	crypto.SM
	calls int
}

func (c *countingSuite) Verify(*ecdsa.PublicKey, []byte, []byte, []byte) bool {
	c.calls++
	return false
}
