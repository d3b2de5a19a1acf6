package api

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHMACIdentityRoundTrip(t *testing.T) {
	id := HMACIdentity{Secret: []byte("login-secret")}

	token := id.MintIdentity("alice", time.Hour)
	user, err := id.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, "alice", user)
}

func TestHMACIdentityRejectsTampering(t *testing.T) {
	id := HMACIdentity{Secret: []byte("login-secret")}
	token := id.MintIdentity("alice", time.Hour)

	for _, bad := range []string{
		"",
		"no-dot",
		token + "x",
		"x" + token,
		strings.Replace(token, ".", ".deadbeef", 1),
	} {
		_, err := id.Verify(context.Background(), bad)
		require.Equal(t, ErrUnauthorized, err, "token %q", bad)
	}
}

func TestHMACIdentityRejectsWrongSecret(t *testing.T) {
	minter := HMACIdentity{Secret: []byte("login-secret")}
	verifier := HMACIdentity{Secret: []byte("other-secret")}

	_, err := verifier.Verify(context.Background(), minter.MintIdentity("alice", time.Hour))
	require.Equal(t, ErrUnauthorized, err)
}

func TestHMACIdentityRejectsExpired(t *testing.T) {
	id := HMACIdentity{Secret: []byte("login-secret")}

	_, err := id.Verify(context.Background(), id.MintIdentity("alice", -time.Minute))
	require.Equal(t, ErrUnauthorized, err)
}

func TestInsecureIdentity(t *testing.T) {
	user, err := InsecureIdentity{}.Verify(context.Background(), "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", user)

	_, err = InsecureIdentity{}.Verify(context.Background(), "")
	require.Equal(t, ErrUnauthorized, err)
}
