package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoundTrip(t *testing.T) {
	m, err := NewManager(Config{Secret: "s3cret", Issuer: "wes-io-live"})
	require.NoError(t, err)

	token, err := m.GenerateToken("user-1", "alice", time.Minute)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)
}

func TestManager_Expired(t *testing.T) {
	m, err := NewManager(Config{Secret: "s3cret"})
	require.NoError(t, err)

	token, err := m.GenerateToken("user-1", "alice", -time.Minute)
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestManager_WrongSecret(t *testing.T) {
	signer, err := NewManager(Config{Secret: "one"})
	require.NoError(t, err)
	verifier, err := NewManager(Config{Secret: "two"})
	require.NoError(t, err)

	token, err := signer.GenerateToken("user-1", "alice", time.Minute)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_WrongIssuer(t *testing.T) {
	signer, err := NewManager(Config{Secret: "s3cret", Issuer: "other"})
	require.NoError(t, err)
	verifier, err := NewManager(Config{Secret: "s3cret", Issuer: "wes-io-live"})
	require.NoError(t, err)

	token, err := signer.GenerateToken("user-1", "alice", time.Minute)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManager_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	m, err := NewManager(Config{PublicKeyPEM: string(pemBytes)})
	require.NoError(t, err)

	claims := &Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "user-9",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Type: "access",
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)

	got, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", got.UserID)

	_, err = m.GenerateToken("user-9", "", time.Minute)
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestNewManager_NoKey(t *testing.T) {
	_, err := NewManager(Config{})
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestManager_RejectsRefreshTokens(t *testing.T) {
	m, err := NewManager(Config{Secret: "s3cret"})
	require.NoError(t, err)

	claims := &Claims{
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		UserID: "user-1",
		Type:   "refresh",
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
