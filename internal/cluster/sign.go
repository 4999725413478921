package cluster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// signingService is the SigV4 service name of AWS-hosted search domains.
const signingService = "es"

// regionPattern extracts the region from hosts such as
// search-content-abc123.eu-west-1.es.amazonaws.com.
var regionPattern = regexp.MustCompile(`\.([a-z]{2}(?:-gov)?-[a-z]+-\d)\.es\.`)

// Signer signs cluster requests with AWS Signature Version 4.
type Signer struct {
	credentials aws.CredentialsProvider
	region      string
	signer      *v4.Signer
	now         func() time.Time
}

// NewSigner creates a signer for the given region.
func NewSigner(provider aws.CredentialsProvider, region string) *Signer {
	return &Signer{
		credentials: provider,
		region:      region,
		signer:      v4.NewSigner(),
		now:         time.Now,
	}
}

// NewStaticSigner creates a signer from fixed credentials.
func NewStaticSigner(accessKey, secretKey, sessionToken, region string) *Signer {
	return NewSigner(credentials.NewStaticCredentialsProvider(accessKey, secretKey, sessionToken), region)
}

// Region returns the region requests are signed for.
func (s *Signer) Region() string {
	return s.region
}

// Sign adds SigV4 headers to req. body must be the exact request payload.
func (s *Signer) Sign(ctx context.Context, req *http.Request, body []byte) error {
	creds, err := s.credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve AWS credentials: %w", err)
	}

	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])

	if err := s.signer.SignHTTP(ctx, creds, req, payloadHash, signingService, s.region, s.now()); err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	return nil
}

// RegionFromURL returns the AWS region encoded in a search domain endpoint.
func RegionFromURL(rawURL string) (string, bool) {
	m := regionPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsLocal reports whether the cluster runs on this machine and needs no signing.
func IsLocal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
