/*
Package kds retrieves chip certificates from Hygon's key distribution service (KDS).

The KDS serves the HSK and the CEK of a chip, identified by its serial number:

	┌─────┐  Signs  ┌─────┐  Signs  ┌─────┐
	│ HRK ├────────►│ HSK ├────────►│ CEK │
	└─────┘         └─────┘         └─────┘

The HRK is trusted and provided by the caller. Retrieved certificates are verified against it
before they are returned, and cached per chip.
*/
package kds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/edgelesssys/go-csv-qpl/verification"
	"github.com/edgelesssys/go-csv-qpl/verification/crypto"
	"github.com/edgelesssys/go-csv-qpl/verification/types"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	// DefaultURL is the URL of Hygon's KDS.
	DefaultURL = "https://cert.hygon.cn/hsk_cek"
	// DefaultCacheTTL is the time retrieved certificates are cached for.
	DefaultCacheTTL = 24 * time.Hour
	// DefaultTimeout is the timeout of a single request to the KDS.
	DefaultTimeout = 30 * time.Second
	// chipQuery is the query parameter carrying the chip serial number.
	chipQuery = "snumber"
	// responseSize is the size of a KDS response: the HSK followed by the CEK.
	responseSize = types.CACertificateSize + types.CSVCertificateSize
)

type kdsAPI interface {
	getFromKDS(ctx context.Context, uri *url.URL) ([]byte, error)
}

// Client is a client for Hygon's KDS.
type Client struct {
	api     kdsAPI
	baseURL *url.URL
	hrk     types.CACertificate
	clock   clock.Clock
	ttl     time.Duration
	log     *zap.Logger
	suite   crypto.Suite

	mux   sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	hsk     types.CACertificate
	cek     types.CSVCertificate
	expires time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithCacheTTL sets the time retrieved certificates are cached for. A TTL of 0 disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.ttl = ttl }
}

// WithHTTPClient sets the HTTP client used to contact the KDS.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.api = &kdsAPIClient{client: client} }
}

// WithSuite sets the crypto suite retrieved certificates are verified with.
func WithSuite(suite crypto.Suite) Option {
	return func(c *Client) { c.suite = suite }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a new Client for the KDS at kdsURL, verifying certificates against hrk.
// hrk must be verified by the caller.
func New(hrk types.CACertificate, kdsURL string, opts ...Option) (*Client, error) {
	baseURL, err := url.Parse(kdsURL)
	if err != nil {
		return nil, fmt.Errorf("parsing KDS URL: %w", err)
	}

	c := &Client{
		api:     &kdsAPIClient{client: &http.Client{Timeout: DefaultTimeout}},
		baseURL: baseURL,
		hrk:     hrk,
		clock:   clock.RealClock{},
		ttl:     DefaultCacheTTL,
		log:     zap.NewNop(),
		suite:   crypto.Default,
		cache:   make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetChain retrieves the HSK and CEK of a chip from the KDS.
func (c *Client) GetChain(ctx context.Context, chipID string) (types.CACertificate, types.CSVCertificate, error) {
	log := c.log.With(zap.String("chipID", chipID))

	c.mux.Lock()
	entry, ok := c.cache[chipID]
	c.mux.Unlock()
	if ok && c.clock.Now().Before(entry.expires) {
		log.Debug("Using cached HSK and CEK")
		return entry.hsk, entry.cek, nil
	}

	uri := *c.baseURL
	query := uri.Query()
	query.Set(chipQuery, chipID)
	uri.RawQuery = query.Encode()

	log.Debug("Retrieving HSK and CEK from KDS", zap.String("url", uri.String()))
	raw, err := c.api.getFromKDS(ctx, &uri)
	if err != nil {
		return types.CACertificate{}, types.CSVCertificate{}, fmt.Errorf("getting certificates from KDS: %w", err)
	}

	hsk, cek, err := c.parseAndVerify(raw)
	if err != nil {
		return types.CACertificate{}, types.CSVCertificate{}, err
	}
	log.Info("Retrieved HSK and CEK from KDS")

	if c.ttl > 0 {
		c.mux.Lock()
		c.cache[chipID] = cacheEntry{hsk: hsk, cek: cek, expires: c.clock.Now().Add(c.ttl)}
		c.mux.Unlock()
	}
	return hsk, cek, nil
}

// parseAndVerify parses a KDS response and verifies the HSK and CEK against the HRK.
func (c *Client) parseAndVerify(raw []byte) (types.CACertificate, types.CSVCertificate, error) {
	if len(raw) < responseSize {
		return types.CACertificate{}, types.CSVCertificate{}, fmt.Errorf("KDS response must be at least %d bytes, got %d bytes", responseSize, len(raw))
	}

	hsk, err := types.ParseCACertificate(raw[:types.CACertificateSize])
	if err != nil {
		return types.CACertificate{}, types.CSVCertificate{}, fmt.Errorf("parsing HSK: %w", err)
	}
	cek, err := types.ParseCSVCertificate(raw[types.CACertificateSize:responseSize])
	if err != nil {
		return types.CACertificate{}, types.CSVCertificate{}, fmt.Errorf("parsing CEK: %w", err)
	}

	if err := verification.VerifyHSKWithSuite(c.suite, &c.hrk, &hsk); err != nil {
		return types.CACertificate{}, types.CSVCertificate{}, fmt.Errorf("verifying HSK: %w", err)
	}
	if err := verification.VerifyCEKWithSuite(c.suite, &hsk, &cek); err != nil {
		return types.CACertificate{}, types.CSVCertificate{}, fmt.Errorf("verifying CEK: %w", err)
	}
	return hsk, cek, nil
}

type kdsAPIClient struct {
	client *http.Client
}

// getFromKDS sends a request to the KDS and returns the response body.
func (c *kdsAPIClient) getFromKDS(ctx context.Context, uri *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %s: %s", resp.Status, http.StatusText(resp.StatusCode))
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 2*responseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return respBody, nil
}
