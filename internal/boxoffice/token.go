package boxoffice

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the bearer token sent on every box office call.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a pre-issued token configured by the operator.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// ServiceTokenSource mints HS256 service tokens with a shared secret.  A
// minted token is reused until refreshBefore ahead of its expiry.
type ServiceTokenSource struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	cached string
	exp    time.Time
}

const (
	serviceSubject = "booking-service"
	serviceTTL     = time.Hour
	refreshBefore  = time.Minute
)

// NewServiceTokenSource returns a source that signs tokens with secret.
func NewServiceTokenSource(secret string) *ServiceTokenSource {
	return &ServiceTokenSource{
		secret:  []byte(secret),
		subject: serviceSubject,
		ttl:     serviceTTL,
		now:     time.Now,
	}
}

// Token implements TokenSource.
func (s *ServiceTokenSource) Token(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.cached != "" && now.Add(refreshBefore).Before(s.exp) {
		return s.cached, nil
	}
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.cached, s.exp = signed, exp
	return signed, nil
}
