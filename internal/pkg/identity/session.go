package identity

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/BudgetFox/internal/pkg/billing"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSession      = errors.New("no session token")
	ErrInvalidSession = errors.New("invalid session token")
)

// Session is the verified identity of a request.
type Session struct {
	UserID string
	Email  string
	// Mirror is the subscription copy embedded in the token, nil when absent.
	Mirror *billing.MirrorEntry
}

type sessionClaims struct {
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata"`
	jwt.RegisteredClaims
}

// Verifier validates RS256 session tokens issued by the identity provider.
type Verifier struct {
	key    *rsa.PublicKey
	leeway time.Duration
}

func NewVerifier(publicKeyPEM string) (*Verifier, error) {
	if strings.TrimSpace(publicKeyPEM) == "" {
		return nil, errors.New("identity JWT public key not configured")
	}
	// Keys from env files usually carry escaped newlines.
	pem := strings.ReplaceAll(publicKeyPEM, `\n`, "\n")
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("parse identity JWT public key: %w", err)
	}
	return &Verifier{key: key, leeway: 5 * time.Second}, nil
}

// ExtractToken picks the session token from the session cookie, falling back
// to an Authorization bearer header.
func ExtractToken(cookie, authHeader string) string {
	if t := strings.TrimSpace(cookie); t != "" {
		return t
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// Verify checks signature, expiry and subject and returns the session.
func (v *Verifier) Verify(token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}

	s := &Session{UserID: claims.Subject, Email: strings.ToLower(claims.Email)}
	// A malformed metadata claim only loses the fast path.
	if entry, err := MirrorEntryFromMetadata(claims.Metadata); err == nil {
		s.Mirror = entry
	}
	return s, nil
}
