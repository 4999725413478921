package report

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// signingPayload is the report serialized without its signature.
func signingPayload(report *Report) ([]byte, error) {
	unsigned := *report
	unsigned.Signature = ""
	return json.Marshal(&unsigned)
}

// Sign signs the report using Ed25519 and stores the signature in the report.
func Sign(report *Report, privateKey ed25519.PrivateKey) error {
	data, err := signingPayload(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report for signing: %w", err)
	}
	report.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, data))
	return nil
}

// Verify checks the report signature against the public key.
func Verify(report *Report, publicKey ed25519.PublicKey) (bool, error) {
	if report.Signature == "" {
		return false, fmt.Errorf("report has no signature")
	}

	signature, err := base64.StdEncoding.DecodeString(report.Signature)
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}

	data, err := signingPayload(report)
	if err != nil {
		return false, fmt.Errorf("failed to marshal report for verification: %w", err)
	}
	return ed25519.Verify(publicKey, data, signature), nil
}
