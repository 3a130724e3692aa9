package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

// --- Verifier tests ---

func TestNewVerifier_RejectsShortSecret(t *testing.T) {
	_, err := NewVerifier([]byte("short"))
	if !errors.Is(err, ErrWeakSecret) {
		t.Errorf("expected ErrWeakSecret, got %v", err)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	v := newTestVerifier(t)

	token, err := v.Issue("user-42", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	userID, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if userID != "user-42" {
		t.Errorf("expected user-42, got %s", userID)
	}
}

func TestVerify_Expired(t *testing.T) {
	v := newTestVerifier(t)
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _ := v.Issue("user-42", time.Hour)

	v.now = time.Now
	if _, err := v.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	other, _ := NewVerifier([]byte("ffffffffffffffffffffffffffffffff"))
	token, _ := other.Issue("user-42", time.Hour)

	v := newTestVerifier(t)
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	v := newTestVerifier(t)
	if _, err := v.Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_Missing(t *testing.T) {
	v := newTestVerifier(t)
	if _, err := v.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	v := newTestVerifier(t)
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected HS512 to be rejected, got %v", err)
	}
}

func TestVerify_RequiresExpiration(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "user-42"}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)

	v := newTestVerifier(t)
	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected token without exp to be rejected, got %v", err)
	}
}

func TestVerify_RequiresSubject(t *testing.T) {
	v := newTestVerifier(t)
	token, _ := v.Issue("", time.Hour)

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected empty subject to be rejected, got %v", err)
	}
}

// --- Middleware tests ---

func echoUser(w http.ResponseWriter, r *http.Request) {
	id, _ := UserID(r.Context())
	w.Write([]byte(id))
}

func TestMiddleware_PassesUserID(t *testing.T) {
	v := newTestVerifier(t)
	token, _ := v.Issue("user-42", time.Hour)

	req := httptest.NewRequest("GET", "/api/portfolio", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	v.Middleware(http.HandlerFunc(echoUser)).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "user-42" {
		t.Errorf("expected user-42 in context, got %q", w.Body.String())
	}
}

func TestMiddleware_QueryTokenFallback(t *testing.T) {
	v := newTestVerifier(t)
	token, _ := v.Issue("user-7", time.Hour)

	req := httptest.NewRequest("GET", "/api/portfolio/ws?token="+token, nil)
	w := httptest.NewRecorder()
	v.Middleware(http.HandlerFunc(echoUser)).ServeHTTP(w, req)

	if w.Body.String() != "user-7" {
		t.Errorf("expected user-7, got %q (status %d)", w.Body.String(), w.Code)
	}
}

func TestMiddleware_Rejects(t *testing.T) {
	v := newTestVerifier(t)

	cases := []struct {
		name   string
		header string
		msg    string
	}{
		{"missing", "", "bearer token required"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "bearer token required"},
		{"garbage", "Bearer garbage", "invalid credentials"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/portfolio", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			called := false
			v.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				called = true
			})).ServeHTTP(w, req)

			if called {
				t.Fatal("handler must not run for rejected requests")
			}
			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", w.Code)
			}
			var body map[string]string
			json.Unmarshal(w.Body.Bytes(), &body)
			if body["error"] != "unauthorized" || !strings.Contains(body["message"], tc.msg) {
				t.Errorf("unexpected body: %v", body)
			}
		})
	}
}
