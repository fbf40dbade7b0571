// Package auth verifies the bearer tokens that identify API callers.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserType is the entitlement tier of a user.
type UserType string

const (
	UserGuest   UserType = "guest"
	UserRegular UserType = "regular"
)

// User is an authenticated caller.
type User struct {
	ID   string   `json:"id"`
	Type UserType `json:"type"`
}

// ErrUnauthenticated is returned when a request carries no valid token.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (*User, error)
}

// DefaultCookie is the cookie read when no Authorization header is set.
const DefaultCookie = "session"

// Claims are the token claims. The subject is the user id.
type Claims struct {
	Type UserType `json:"type,omitempty"`
	jwt.RegisteredClaims
}

var _ Authenticator = (*JWT)(nil)

// JWT authenticates HS256-signed tokens from the Authorization header or
// the session cookie.
type JWT struct {
	secret []byte
	cookie string
	now    func() time.Time
}

// Option configures a JWT authenticator.
type Option func(*JWT)

// WithCookie changes the fallback cookie name.
func WithCookie(name string) Option {
	return func(j *JWT) { j.cookie = name }
}

// WithClock sets the clock used for issuing and validating expiry.
func WithClock(now func() time.Time) Option {
	return func(j *JWT) { j.now = now }
}

// NewJWT returns an authenticator for tokens signed with secret.
func NewJWT(secret []byte, opts ...Option) (*JWT, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty jwt secret")
	}
	j := &JWT{secret: secret, cookie: DefaultCookie, now: time.Now}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Issue signs a token for u valid for ttl. A zero ttl never expires.
func (j *JWT) Issue(u User, ttl time.Duration) (string, error) {
	if u.ID == "" {
		return "", errors.New("auth: user id is required")
	}
	now := j.now()
	c := Claims{
		Type: u.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  u.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return s, nil
}

// Verify parses a token and returns its user. Tokens without a type claim
// are regular users.
func (j *JWT) Verify(token string) (*User, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}
	u := &User{ID: c.Subject, Type: c.Type}
	switch u.Type {
	case UserGuest, UserRegular:
	case "":
		u.Type = UserRegular
	default:
		return nil, fmt.Errorf("%w: unknown user type %q", ErrUnauthenticated, c.Type)
	}
	return u, nil
}

func (j *JWT) Authenticate(r *http.Request) (*User, error) {
	token := bearer(r.Header.Get("Authorization"))
	if token == "" {
		if ck, err := r.Cookie(j.cookie); err == nil {
			token = ck.Value
		}
	}
	if token == "" {
		return nil, ErrUnauthenticated
	}
	return j.Verify(token)
}

func bearer(h string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
