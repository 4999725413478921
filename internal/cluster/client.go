package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"snaprestore.io/snaprestore-cli/internal/config"
)

const defaultRequestTimeout = 60 * time.Second

// CredentialLookup resolves a credential by environment variable name.
type CredentialLookup func(name string) (string, bool)

// Client talks to a search cluster's snapshot and recovery APIs.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	signer     *Signer
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSigner signs every request with SigV4.
func WithSigner(s *Signer) Option {
	return func(c *Client) { c.signer = s }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("component", "cluster_client").Logger() }
}

// New creates a client for the cluster at rawURL.
func New(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid cluster url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid cluster url %q: scheme must be http or https", rawURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig creates a client for a configured cluster. Local clusters are
// used unsigned; every other cluster is treated as an AWS-hosted domain.
func NewFromConfig(cfg config.Cluster, lookup CredentialLookup, logger zerolog.Logger) (*Client, error) {
	opts := []Option{WithLogger(logger)}

	if !IsLocal(cfg.URL) {
		region := cfg.Region
		if region == "" {
			var ok bool
			region, ok = RegionFromURL(cfg.URL)
			if !ok {
				return nil, fmt.Errorf("could not determine AWS region from %s; set region in the cluster config", cfg.URL)
			}
		}

		accessKey, ok := lookup(cfg.AccessKeyEnv)
		if !ok {
			return nil, fmt.Errorf("AWS access key %s is not set", envName(cfg.AccessKeyEnv))
		}
		secretKey, ok := lookup(cfg.SecretKeyEnv)
		if !ok {
			return nil, fmt.Errorf("AWS secret key %s is not set", envName(cfg.SecretKeyEnv))
		}
		sessionToken, _ := lookup(cfg.SessionTokenEnv)

		opts = append(opts, WithSigner(NewStaticSigner(accessKey, secretKey, sessionToken, region)))
	}

	return New(cfg.URL, opts...)
}

func envName(name string) string {
	if name == "" {
		return "(no variable configured)"
	}
	return name
}

// URL returns the cluster base URL.
func (c *Client) URL() string {
	return c.baseURL.String()
}

// VerifyRepository checks that the repository is registered and that every
// node can access it.
func (c *Client) VerifyRepository(ctx context.Context, repository string) error {
	return c.do(ctx, http.MethodPost, []string{"_snapshot", repository, "_verify"}, nil, nil, nil)
}

// Restore requests a restore of a single index from a snapshot.
func (c *Client) Restore(ctx context.Context, repository, snapshot, index string, opts RestoreOptions) (*RestoreResponse, error) {
	query := url.Values{}
	query.Set("wait_for_completion", fmt.Sprintf("%t", opts.WaitForCompletion))

	body := map[string]any{
		"indices":         index,
		"include_aliases": opts.IncludeAliases,
	}

	var resp RestoreResponse
	if err := c.do(ctx, http.MethodPost, []string{"_snapshot", repository, snapshot, "_restore"}, query, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recovery returns the recovery report for an index.
func (c *Client) Recovery(ctx context.Context, index string) (RecoveryResponse, error) {
	resp := RecoveryResponse{}
	if err := c.do(ctx, http.MethodGet, []string{index, "_recovery"}, nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method string, segments []string, query url.Values, in, out any) error {
	u := *c.baseURL
	u.Path = path.Join(append([]string{"/", u.Path}, segments...)...)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.signer != nil {
		if err := c.signer.Sign(ctx, req, payload); err != nil {
			return err
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", u.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("cluster request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseResponseError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, u.Path, err)
	}
	return nil
}
