// Package devicetoken issues and validates the short-lived bearer tokens an
// agent presents to the collector. The subject claim is the device id.
package devicetoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Issuer     = "logship-agent"
	DefaultTTL = 5 * time.Minute
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrDeviceMismatch = errors.New("token subject does not match device")
	ErrEmptySecret    = errors.New("token secret is empty")
)

type Claims struct {
	jwt.RegisteredClaims
}

// DeviceID returns the subject claim.
func (c *Claims) DeviceID() string {
	return c.Subject
}

type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner returns a Signer using HS256. A ttl <= 0 selects DefaultTTL.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (s *Signer) Sign(deviceID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign device token: %w", err)
	}
	return signed, nil
}

type Verifier struct {
	secret []byte
	leeway time.Duration
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Verifier{secret: []byte(secret), leeway: 30 * time.Second}, nil
}

// Verify parses tokenString and checks signature, expiry and issuer.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyDevice is Verify plus a check that the token was minted for deviceID.
func (v *Verifier) VerifyDevice(tokenString, deviceID string) (*Claims, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Subject != deviceID {
		return nil, ErrDeviceMismatch
	}
	return claims, nil
}
