package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "trackbus"

var ErrInvalidToken = errors.New("invalid or expired token")

// Identity is the principal a session runs as.
type Identity struct {
	Subject   string    `json:"subject"`
	Anonymous bool      `json:"anonymous"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider establishes identities.
type Provider interface {
	// OnIdentity calls fn once, asynchronously, with the identity the
	// provider already holds, or nil when there is none.
	OnIdentity(fn func(*Identity)) (cancel func())
	// Establish signs in with token, or anonymously when token is empty.
	Establish(ctx context.Context, token string) (*Identity, error)
}

// Claims are the JWT claims of a session token.
type Claims struct {
	Anonymous bool `json:"anon,omitempty"`
	jwt.RegisteredClaims
}

// JWTProvider issues and validates HMAC-signed session tokens.
type JWTProvider struct {
	secretKey     []byte
	tokenDuration time.Duration
	now           func() time.Time

	mu      sync.Mutex
	current *Identity
}

var _ Provider = (*JWTProvider)(nil)

// NewJWTProvider creates a provider. secretKey should be a strong random
// string; tokenDuration is how long issued tokens stay valid.
func NewJWTProvider(secretKey string, tokenDuration time.Duration) *JWTProvider {
	return &JWTProvider{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
		now:           time.Now,
	}
}

// Generate signs a token for subject.
func (p *JWTProvider) Generate(subject string, anonymous bool) (*Identity, error) {
	now := p.now()
	exp := now.Add(p.tokenDuration)
	claims := &Claims{
		Anonymous: anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Identity{Subject: subject, Anonymous: anonymous, Token: signed, ExpiresAt: exp.UTC().Truncate(time.Second)}, nil
}

// Validate parses and checks a token.
func (p *JWTProvider) Validate(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return p.secretKey, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	id := &Identity{Subject: claims.Subject, Anonymous: claims.Anonymous, Token: tokenString}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.UTC()
	}
	return id, nil
}

func (p *JWTProvider) OnIdentity(fn func(*Identity)) func() {
	var (
		mu        sync.Mutex
		cancelled bool
	)
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	go func() {
		mu.Lock()
		defer mu.Unlock()
		if !cancelled {
			fn(current)
		}
	}()
	return func() {
		mu.Lock()
		cancelled = true
		mu.Unlock()
	}
}

func (p *JWTProvider) Establish(ctx context.Context, token string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		id  *Identity
		err error
	)
	if token = strings.TrimSpace(token); token == "" {
		id, err = p.Generate(uuid.NewString(), true)
	} else {
		id, err = p.Validate(token)
	}
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.current = id
	p.mu.Unlock()
	return id, nil
}
