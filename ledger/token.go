package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrTokenInvalid is thrown for tokens that are malformed or carry a bad
	// signature.
	ErrTokenInvalid = errors.New("ledger: invalid match token")
	// ErrTokenExpired is thrown for tokens presented after their expiry.
	ErrTokenExpired = errors.New("ledger: match token expired")
)

// Claims is the payload bound into a match token: one user, one stake, one
// escrow. EscrowID doubles as the token's single-use identity.
type Claims struct {
	UserID   string
	Stake    int64
	EscrowID string
	Expiry   time.Time
}

// TokenSigner mints and verifies HMAC-SHA256 signed match tokens. Tokens are
// bearer credentials: possession authorizes exactly one arena connection.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner returns a signer using the given secret and token lifetime.
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{secret: secret, ttl: ttl, now: time.Now}
}

func (ts *TokenSigner) canonical(userID string, stake int64, escrowID string, expiry int64) string {
	return fmt.Sprintf("%s\n%d\n%s\n%d", userID, stake, escrowID, expiry)
}

func (ts *TokenSigner) sign(canonical string) string {
	h := hmac.New(sha256.New, ts.secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// Mint produces a signed token for the claims, stamping the expiry.
func (ts *TokenSigner) Mint(userID string, stake int64, escrowID string) (string, error) {
	if len(ts.secret) == 0 {
		return "", errors.New("ledger: token secret not configured")
	}
	expiry := ts.now().Add(ts.ttl).Unix()
	payload := ts.canonical(userID, stake, escrowID, expiry)
	sig := ts.sign(payload)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + sig, nil
}

// Verify checks the signature and expiry and returns the embedded claims.
func (ts *TokenSigner) Verify(token string) (Claims, error) {
	dot := strings.LastIndex(token, ".")
	if dot < 0 {
		return Claims{}, ErrTokenInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(token[:dot])
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	payload := string(raw)
	sig := token[dot+1:]

	if !hmac.Equal([]byte(ts.sign(payload)), []byte(sig)) {
		return Claims{}, ErrTokenInvalid
	}

	parts := strings.Split(payload, "\n")
	if len(parts) != 4 {
		return Claims{}, ErrTokenInvalid
	}
	stake, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}
	expiry, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Claims{}, ErrTokenInvalid
	}

	claims := Claims{
		UserID:   parts[0],
		Stake:    stake,
		EscrowID: parts[2],
		Expiry:   time.Unix(expiry, 0),
	}
	if ts.now().After(claims.Expiry) {
		return Claims{}, ErrTokenExpired
	}
	return claims, nil
}
