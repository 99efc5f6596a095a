package auth

import (
	"testing"
	"time"

	"github.com/casanet/remote-server/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardToken_RoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateForwardToken("AA:BB:CC:DD:EE:FF", "local-session", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseForwardToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", claims.Server)
	assert.Equal(t, "local-session", claims.Session)
}

func TestAdminToken_RoundTrip(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateAdminToken("admin@example.com", secret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseAdminToken(tok, secret)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Email)
}

func TestParse_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")

	tok, err := GenerateForwardToken("AA:BB:CC:DD:EE:FF", "", secret, -time.Second)
	require.NoError(t, err)

	_, err = ParseForwardToken(tok, secret)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")
	forward, err := GenerateForwardToken("AA:BB:CC:DD:EE:FF", "", secret, time.Hour)
	require.NoError(t, err)
	admin, err := GenerateAdminToken("admin@example.com", secret, time.Hour)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &AdminClaims{Email: "admin@example.com"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		parse func() error
	}{
		{name: "garbage", parse: func() error { _, err := ParseForwardToken("not-a-jwt", secret); return err }},
		{name: "wrong secret", parse: func() error { _, err := ParseForwardToken(forward, []byte("other")); return err }},
		{name: "admin token as forward", parse: func() error { _, err := ParseForwardToken(admin, secret); return err }},
		{name: "forward token as admin", parse: func() error { _, err := ParseAdminToken(forward, secret); return err }},
		{name: "unsigned", parse: func() error { _, err := ParseAdminToken(none, secret); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.parse(), common.ErrInvalidToken)
		})
	}
}
