package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haivivi/chatlogo/pkg/auth"
)

func newJWT(t *testing.T, now func() time.Time) *auth.JWT {
	t.Helper()
	j, err := auth.NewJWT([]byte("test-secret"), auth.WithClock(now))
	if err != nil {
		t.Fatal(err)
	}
	return j
}

func TestIssueVerify(t *testing.T) {
	j := newJWT(t, time.Now)
	tok, err := j.Issue(auth.User{ID: "u1", Type: auth.UserGuest}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	u, err := j.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if u.ID != "u1" || u.Type != auth.UserGuest {
		t.Fatalf("user = %+v", u)
	}
}

func TestAuthenticateSources(t *testing.T) {
	j := newJWT(t, time.Now)
	tok, err := j.Issue(auth.User{ID: "u1"}, 0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		setup   func(r *http.Request)
		wantErr bool
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }, false},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer "+tok) }, false},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.DefaultCookie, Value: tok}) }, false},
		{"none", func(*http.Request) {}, true},
		{"basic", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+tok) }, true},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
			tt.setup(r)
			u, err := j.Authenticate(r)
			if tt.wantErr {
				if !errors.Is(err, auth.ErrUnauthenticated) {
					t.Fatalf("err = %v, want ErrUnauthenticated", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if u.ID != "u1" || u.Type != auth.UserRegular {
				t.Fatalf("user = %+v", u)
			}
		})
	}
}

func TestExpiredAndForeignTokens(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	j := newJWT(t, func() time.Time { return now })
	tok, err := j.Issue(auth.User{ID: "u1"}, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	later := newJWT(t, func() time.Time { return now.Add(2 * time.Minute) })
	if _, err := later.Verify(tok); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expired Verify = %v", err)
	}

	other, err := auth.NewJWT([]byte("other-secret"), auth.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Verify(tok); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("foreign Verify = %v", err)
	}
}

func TestNewJWTRequiresSecret(t *testing.T) {
	if _, err := auth.NewJWT(nil); err == nil {
		t.Fatal("NewJWT(nil) succeeded")
	}
}
