package auth

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/signalix/reverseotp/internal/clock"
	"github.com/signalix/reverseotp/internal/model"
)

const defaultCredentialTTL = 24 * time.Hour

// ErrInvalidCredential is returned when a bearer credential fails verification
var ErrInvalidCredential = errors.New("invalid credential")

// CredentialClaims represents the claims carried by an issued login credential
type CredentialClaims struct {
	UserID    string `json:"sub"`
	RequestID string `json:"rid"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies login credentials (HS256)
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clocker
}

// NewIssuer creates a new credential issuer. A zero ttl falls back to 24h and a nil clk to
// the system clock. Verify checks expiry against clk.
func NewIssuer(secret, issuer string, ttl time.Duration, clk clock.Clocker) *Issuer {
	if ttl <= 0 {
		ttl = defaultCredentialTTL
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		clock:  clk,
	}
}

// Issue creates a signed credential bound to userID and requestID, valid from now for the issuer's ttl.
func (s *Issuer) Issue(userID, requestID string, now time.Time) (model.Credential, error) {
	expiresAt := now.Add(s.ttl)
	tokenID := uuid.NewString()
	claims := &CredentialClaims{
		UserID:    userID,
		RequestID: requestID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return model.Credential{}, fmt.Errorf("failed to sign credential: %w", err)
	}

	return model.Credential{
		Token:     tokenString,
		TokenID:   tokenID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify verifies and parses a credential.
func (s *Issuer) Verify(tokenString string) (*CredentialClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &CredentialClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*CredentialClaims)
	if !ok || !token.Valid || claims.UserID == "" || claims.RequestID == "" {
		return nil, ErrInvalidCredential
	}

	return claims, nil
}

// LoginURL appends the credential to baseURL as the token query parameter.
func LoginURL(token, baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse login base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
