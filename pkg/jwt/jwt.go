package jwt

import (
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrNoKey        = errors.New("jwt: no verification key configured")
)

// Claims represents JWT claims issued by the auth collaborator.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string   `json:"user_id"`
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	Type     string   `json:"type"` // "access" or "refresh"
}

// Config selects the verification key. Secret enables HS256, PublicKeyPEM
// enables RS256; when both are set RS256 wins.
type Config struct {
	Secret       string `mapstructure:"jwt_secret"`
	PublicKeyPEM string `mapstructure:"public_key_pem"`
	Issuer       string `mapstructure:"issuer"`
}

// Manager verifies access tokens. It signs tokens only when configured
// with a shared secret, which local tooling and tests rely on.
type Manager struct {
	secret    []byte
	publicKey *rsa.PublicKey
	issuer    string
}

// NewManager creates a new JWT manager.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{issuer: cfg.Issuer}

	if cfg.PublicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, err
		}
		m.publicKey = key
		return m, nil
	}

	if cfg.Secret == "" {
		return nil, ErrNoKey
	}
	m.secret = []byte(cfg.Secret)
	return m, nil
}

// GenerateToken signs an HS256 access token for userID.
func (m *Manager) GenerateToken(userID, username string, ttl time.Duration) (string, error) {
	if m.secret == nil {
		return "", ErrNoKey
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   userID,
		Username: username,
		Type:     "access",
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ValidateToken validates an access token and returns its claims.
func (m *Manager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != "" && claims.Type != "access" {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (m *Manager) keyFunc(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA:
		if m.publicKey == nil {
			return nil, ErrInvalidToken
		}
		return m.publicKey, nil
	case *jwt.SigningMethodHMAC:
		if m.secret == nil {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	default:
		return nil, ErrInvalidToken
	}
}
