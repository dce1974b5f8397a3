package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

const signatureHeader = "X-Hub-Signature-256"

// verifySignature reads the request body (bounded by maxBytes) and checks
// the platform's sha256 HMAC over it. An empty secret skips validation
// outside production.
func verifySignature(r *http.Request, secretKey string, maxBytes int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}

	if secretKey == "" {
		if os.Getenv("CAMPUSWATCH_ENV") == "production" {
			return nil, fmt.Errorf("webhook app secret is required in production mode")
		}
		return body, nil
	}

	header := r.Header.Get(signatureHeader)
	if header == "" {
		return nil, fmt.Errorf("missing signature header: %s", signatureHeader)
	}

	parts := strings.SplitN(header, "=", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "sha256" {
		return nil, fmt.Errorf("invalid signature format in header %s", signatureHeader)
	}
	expectedSignatureHex := parts[1]

	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write(body)
	computedSignatureHex := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computedSignatureHex), []byte(expectedSignatureHex)) {
		return nil, fmt.Errorf("signature mismatch")
	}

	return body, nil
}
