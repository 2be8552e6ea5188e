package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid is returned for malformed or tampered download tokens.
	ErrTokenInvalid = errors.New("download token invalid")
	// ErrTokenExpired is returned once a download token passed its expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// DownloadClaims identify one stored clearance export.
type DownloadClaims struct {
	ExportID  string `json:"eid"`
	StudentID string `json:"sid"`
	Semester  string `json:"sem"`
	Path      string `json:"p"`
	ExpiresAt int64  `json:"exp"`
}

// Expiry returns the expiry as time.
func (c DownloadClaims) Expiry() time.Time { return time.Unix(c.ExpiresAt, 0) }

// SignedURLSigner issues HMAC-SHA256 signed download tokens of the form payload.signature,
// both parts base64url encoded.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign stamps the expiry on claims and returns the token.
func (s *SignedURLSigner) Sign(claims DownloadClaims) (string, time.Time, error) {
	if claims.ExportID == "" || claims.Path == "" {
		return "", time.Time{}, fmt.Errorf("export id and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl)
	claims.ExpiresAt = expiresAt.Unix()
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode download claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(encoded), expiresAt.Truncate(time.Second), nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (s *SignedURLSigner) Verify(token string) (DownloadClaims, error) {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || encoded == "" || signature == "" {
		return DownloadClaims{}, ErrTokenInvalid
	}
	if !hmac.Equal([]byte(s.sign(encoded)), []byte(signature)) {
		return DownloadClaims{}, ErrTokenInvalid
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return DownloadClaims{}, ErrTokenInvalid
	}
	var claims DownloadClaims
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Path == "" {
		return DownloadClaims{}, ErrTokenInvalid
	}
	if s.now().After(claims.Expiry()) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}

func (s *SignedURLSigner) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
