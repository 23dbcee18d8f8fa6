package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// verifySignature verifies an HMAC-SHA1 signature against the request body.
//
// The legacy push-notification protocol signs with HMAC-SHA1 and sends the
// result as "sha1=<hex>" in the X-Hub-Signature header. Comparison uses
// crypto/subtle so verification time does not depend on where the digests
// first differ.
//
// Returns nil if the signature is valid, an error otherwise. All errors are
// generic to prevent information leakage; malformed input simply fails.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return fmt.Errorf("webhook verification failed")
	}
	if signature == "" {
		return fmt.Errorf("webhook verification failed")
	}

	actualMAC, err := parseSignature(signature)
	if err != nil {
		return fmt.Errorf("webhook verification failed")
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	expectedMAC := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expectedMAC, actualMAC) != 1 {
		return fmt.Errorf("webhook verification failed")
	}
	return nil
}

// parseSignature decodes the "sha1=<hex>" header value to raw digest bytes.
func parseSignature(signature string) ([]byte, error) {
	hexSig, ok := strings.CutPrefix(signature, "sha1=")
	if !ok {
		return nil, fmt.Errorf("signature missing sha1= prefix")
	}
	return hex.DecodeString(hexSig)
}

// computeExpectedSignature computes the hex HMAC-SHA1 signature for a body.
// Used for testing and validation.
func computeExpectedSignature(body []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// formatHubSignature formats a hex digest in the X-Hub-Signature wire format.
func formatHubSignature(hexSig string) string {
	return "sha1=" + hexSig
}
