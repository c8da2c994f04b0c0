package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

const issuerName = "cjdns-admin"

// keySalt is fixed so every process sharing a password derives the same key.
var keySalt = []byte("cjdns-admin-token")

var ErrInvalidToken = errors.New("invalid token")

// Claims identify the operator a token was issued to.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer mints and checks admin tokens signed with a key derived from the
// admin password.
type Issuer struct {
	key []byte
	now func() time.Time
}

// NewIssuer derives the signing key from password.
func NewIssuer(password string) (*Issuer, error) {
	if password == "" {
		return nil, errors.New("admin password is empty")
	}
	key, err := scrypt.Key([]byte(password), keySalt, 32768, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return &Issuer{key: key, now: time.Now}, nil
}

// Issue returns a signed token for subject valid for ttl, and its id.
func (i *Issuer) Issue(subject string, ttl time.Duration) (string, string, error) {
	jti := uuid.New().String()
	now := i.now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    issuerName,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, jti, nil
}

// Validate parses and verifies a token.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return i.key, nil
		},
		jwt.WithIssuer(issuerName),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
