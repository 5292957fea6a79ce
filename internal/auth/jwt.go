package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleTerminal is the role carried by check-in terminal tokens.
const RoleTerminal = "terminal"

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrIssuerMismatch  = errors.New("issuer mismatch")
	ErrProvisioningKey = errors.New("invalid provisioning key")
	ErrProvisioningOff = errors.New("terminal provisioning disabled")
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	AccessExp    time.Time `json:"accessExpiresAt"`
	RefreshExp   time.Time `json:"refreshExpiresAt"`
}

// Claims represents JWT payload.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies terminal tokens.
type Issuer struct {
	name       string
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an issuer signing HS256 tokens with key.
func NewIssuer(name, key string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{name: name, key: []byte(key), accessTTL: accessTTL, refreshTTL: refreshTTL, now: time.Now}
}

// Issue issues signed access and refresh tokens for a terminal.
func (i *Issuer) Issue(terminalID string) (TokenPair, error) {
	now := i.now()
	pair := TokenPair{AccessExp: now.Add(i.accessTTL), RefreshExp: now.Add(i.refreshTTL)}

	var err error
	if pair.AccessToken, err = i.sign(terminalID, now, pair.AccessExp); err != nil {
		return TokenPair{}, err
	}
	if pair.RefreshToken, err = i.sign(terminalID, now, pair.RefreshExp); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (i *Issuer) sign(subject string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role: RoleTerminal,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.name,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Parse validates a token and returns claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if i.name != "" && claims.Issuer != i.name {
		return Claims{}, ErrIssuerMismatch
	}
	if claims.Role != RoleTerminal {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}

// CheckProvisioningKey compares a presented provisioning key with the
// configured one. An empty configured key disables provisioning.
func CheckProvisioningKey(presented, configured string) error {
	if configured == "" {
		return ErrProvisioningOff
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) != 1 {
		return ErrProvisioningKey
	}
	return nil
}
