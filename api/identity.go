package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized is returned for missing or invalid identity tokens.
var ErrUnauthorized = errors.New("api: invalid identity token")

// IdentityVerifier resolves a bearer identity token to a user id. Identity
// issuance is an external collaborator's job; the engine only checks that the
// presented credential is one that collaborator signed.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// HMACIdentity verifies identity tokens of the form
// base64url(userID "\n" expiryUnix) "." hex(hmac-sha256). The secret is
// shared with the external login service.
type HMACIdentity struct {
	Secret []byte
}

func (h HMACIdentity) Verify(ctx context.Context, token string) (string, error) {
	dot := strings.LastIndex(token, ".")
	if dot < 0 {
		return "", ErrUnauthorized
	}
	raw, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return "", ErrUnauthorized
	}

	mac := hmac.New(sha256.New, h.Secret)
	_, _ = mac.Write(raw)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(token[dot+1:])) {
		return "", ErrUnauthorized
	}

	parts := strings.SplitN(string(raw), "\n", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", ErrUnauthorized
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || time.Now().After(time.Unix(expiry, 0)) {
		return "", ErrUnauthorized
	}
	return parts[0], nil
}

// MintIdentity signs an identity token. Exists for the dev server and tests;
// production deployments take tokens from the external login service.
func (h HMACIdentity) MintIdentity(userID string, ttl time.Duration) string {
	payload := userID + "\n" + strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)
	mac := hmac.New(sha256.New, h.Secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + hex.EncodeToString(mac.Sum(nil))
}

// InsecureIdentity treats the bearer token itself as the user id. Development
// only: it performs no verification at all.
type InsecureIdentity struct{}

func (InsecureIdentity) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	return token, nil
}
