package fulfillment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/common"
)

// SignatureVerifier authenticates webhook deliveries. The payment processor
// signs the exact raw request body with HMAC-SHA256 over a shared secret and
// sends the hex digest in the signature header.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier constructs a verifier for the given shared secret.
func NewSignatureVerifier(secret []byte) *SignatureVerifier {
	return &SignatureVerifier{secret: secret}
}

// Verify recomputes the digest over body and compares it to signature in
// constant time. Returns common.ErrMissingSignature when the header was
// absent and common.ErrInvalidSignature for any mismatch.
func (v *SignatureVerifier) Verify(signature string, body []byte) error {
	if signature == "" {
		return common.ErrMissingSignature
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return common.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return common.ErrInvalidSignature
	}
	return nil
}
