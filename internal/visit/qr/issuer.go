// Package qr derives the scannable code for a visit.
package qr

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/crypto/blake2b"

	id "passage/pkg/domain"
)

// DefaultTTL caps how long a code stays presentable after issuance.
const DefaultTTL = 24 * time.Hour

// Issuer derives unguessable, time-bounded tokens. The token is a keyed
// BLAKE2b digest over the visit id and fresh random bytes, so it cannot be
// predicted from the visit id alone and re-issuing always yields a new value.
type Issuer struct {
	key []byte
	ttl time.Duration
}

// NewIssuer builds an Issuer from the configured signing key. The ttl
// defaults to DefaultTTL when zero.
func NewIssuer(key string, ttl time.Duration) (*Issuer, error) {
	if len(key) < 16 {
		return nil, fmt.Errorf("qr signing key must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{key: []byte(key), ttl: ttl}, nil
}

// IssueCode returns a fresh token and its expiry for a visit. Expiry is
// min(expectedEnd, now+ttl) when expectedEnd is set, else now+ttl. Callers
// must persist the token atomically with the visit; the previous token (if
// any) stops resolving the moment the swap commits.
func (i *Issuer) IssueCode(visitID id.VisitID, now time.Time, expectedEnd *time.Time) (string, time.Time, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", time.Time{}, fmt.Errorf("generate qr nonce: %w", err)
	}

	mac, err := blake2b.New256(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("init qr mac: %w", err)
	}
	mac.Write([]byte(visitID.String()))
	mac.Write(nonce)
	digest := mac.Sum(nil)

	// 24 bytes keeps the token short enough to scan reliably while leaving
	// no realistic brute-force surface.
	token := base64.RawURLEncoding.EncodeToString(digest[:24])

	expiresAt := now.Add(i.ttl)
	if expectedEnd != nil && expectedEnd.Before(expiresAt) {
		expiresAt = *expectedEnd
	}
	return token, expiresAt, nil
}

// RenderPNG encodes a token as a QR image for the host client to forward to
// visitors.
func RenderPNG(token string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return png, nil
}
