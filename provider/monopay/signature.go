package monopay

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mstgnz/monopay/provider"
)

// KeySource fetches the merchant's webhook public key
type KeySource interface {
	MerchantPubKey(ctx context.Context) (string, error)
}

// Verifier checks X-Sign headers against the merchant public key.
// With ttl <= 0 the key is fetched on every call.
type Verifier struct {
	keys KeySource
	ttl  time.Duration
	now  func() time.Time

	mu        sync.Mutex
	cached    *ecdsa.PublicKey
	fetchedAt time.Time
}

// NewVerifier creates a webhook signature verifier
func NewVerifier(keys KeySource, ttl time.Duration) *Verifier {
	return &Verifier{
		keys: keys,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Verify returns nil when signature is a valid ECDSA signature of body
func (v *Verifier) Verify(ctx context.Context, body []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("%w: X-Sign header is missing", provider.ErrInvalidSignature)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: X-Sign is not base64", provider.ErrInvalidSignature)
	}

	key, fromCache, err := v.publicKey(ctx, false)
	if err != nil {
		return err
	}
	if VerifySignature(key, body, sig) {
		return nil
	}

	// the key may have rotated since it was cached
	if fromCache {
		key, _, err = v.publicKey(ctx, true)
		if err != nil {
			return err
		}
		if VerifySignature(key, body, sig) {
			return nil
		}
	}

	return fmt.Errorf("%w: signature does not match body", provider.ErrInvalidSignature)
}

func (v *Verifier) publicKey(ctx context.Context, refresh bool) (*ecdsa.PublicKey, bool, error) {
	if v.ttl > 0 && !refresh {
		v.mu.Lock()
		key, fetchedAt := v.cached, v.fetchedAt
		v.mu.Unlock()

		if key != nil && v.now().Sub(fetchedAt) < v.ttl {
			return key, true, nil
		}
	}

	encoded, err := v.keys.MerchantPubKey(ctx)
	if err != nil {
		return nil, false, err
	}

	key, err := ParsePublicKey(encoded)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", provider.ErrProviderError, err)
	}

	if v.ttl > 0 {
		v.mu.Lock()
		v.cached = key
		v.fetchedAt = v.now()
		v.mu.Unlock()
	}

	return key, false, nil
}

// ParsePublicKey decodes a base64-encoded PEM ECDSA public key
func ParsePublicKey(encoded string) (*ecdsa.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("public key is not base64: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("public key is not PEM encoded")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want ECDSA", parsed)
	}

	return key, nil
}

// VerifySignature checks an ASN.1 ECDSA signature over SHA-256(body)
func VerifySignature(key *ecdsa.PublicKey, body, sig []byte) bool {
	digest := sha256.Sum256(body)
	return ecdsa.VerifyASN1(key, digest[:], sig)
}
