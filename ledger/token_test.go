package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenSigner([]byte("secret"), time.Hour)

	tok, err := ts.Mint("user-1", 500, "escrow-1")
	require.Nil(t, err)
	require.NotEmpty(t, tok)

	claims, err := ts.Verify(tok)
	require.Nil(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, int64(500), claims.Stake)
	require.Equal(t, "escrow-1", claims.EscrowID)
}

func TestTokenTampered(t *testing.T) {
	ts := NewTokenSigner([]byte("secret"), time.Hour)

	tok, err := ts.Mint("user-1", 500, "escrow-1")
	require.Nil(t, err)

	// Flip a payload byte, signature no longer matches.
	_, err = ts.Verify("A" + tok[1:])
	require.Equal(t, ErrTokenInvalid, err)

	// Garbage is rejected, not parsed.
	_, err = ts.Verify("not-a-token")
	require.Equal(t, ErrTokenInvalid, err)
	_, err = ts.Verify("")
	require.Equal(t, ErrTokenInvalid, err)
}

func TestTokenWrongSecret(t *testing.T) {
	ts := NewTokenSigner([]byte("secret"), time.Hour)
	other := NewTokenSigner([]byte("other"), time.Hour)

	tok, err := ts.Mint("user-1", 100, "escrow-1")
	require.Nil(t, err)

	_, err = other.Verify(tok)
	require.Equal(t, ErrTokenInvalid, err)
}

func TestTokenExpired(t *testing.T) {
	ts := NewTokenSigner([]byte("secret"), time.Hour)
	now := time.Now()
	ts.now = func() time.Time { return now }

	tok, err := ts.Mint("user-1", 100, "escrow-1")
	require.Nil(t, err)

	// Just before expiry.
	ts.now = func() time.Time { return now.Add(time.Hour - time.Second) }
	_, err = ts.Verify(tok)
	require.Nil(t, err)

	// Just after expiry.
	ts.now = func() time.Time { return now.Add(time.Hour + time.Second) }
	_, err = ts.Verify(tok)
	require.Equal(t, ErrTokenExpired, err)
}

func TestTokenNoSecret(t *testing.T) {
	ts := NewTokenSigner(nil, time.Hour)

	_, err := ts.Mint("user-1", 100, "escrow-1")
	require.Error(t, err)
}
