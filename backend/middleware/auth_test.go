package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PhilHem/secureone/backend/handlers"
	"github.com/PhilHem/secureone/backend/registration"

	"github.com/gorilla/sessions"
)

func useCookieSessions(t *testing.T) {
	t.Helper()
	store := sessions.NewCookieStore([]byte(testSecret))
	orig := handlers.Store
	handlers.Store = store
	t.Cleanup(func() { handlers.Store = orig })
}

// withSession runs fill on a fresh session and returns the cookie holding it.
func withSession(t *testing.T, fill func(s *sessions.Session)) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	s, _ := handlers.Store.Get(req, "session")
	fill(s)
	if err := s.Save(req, rec); err != nil {
		t.Fatal(err)
	}
	return rec.Result().Cookies()[0]
}

func protectedStatus(t *testing.T, wrap func(http.HandlerFunc) http.HandlerFunc, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	handler := wrap(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest("GET", "/dashboard", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRequireAuth_AnonymousGoesToLogin(t *testing.T) {
	useCookieSessions(t)

	rec := protectedStatus(t, RequireAuth, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("Expected redirect to /login, got %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRequireAuth_PendingGoesToVerify(t *testing.T) {
	useCookieSessions(t)
	cookie := withSession(t, func(s *sessions.Session) {
		s.Values["pending_registration"] = &registration.PendingRegistration{Email: "a@x.com", Code: "123456", IssuedAt: time.Now()}
		s.Values["otp_email"] = "a@x.com"
	})

	rec := protectedStatus(t, RequireAuth, cookie)
	if rec.Header().Get("Location") != "/verify" {
		t.Errorf("Expected redirect to /verify, got %s", rec.Header().Get("Location"))
	}
}

func TestRequireAuth_VerifiedPasses(t *testing.T) {
	useCookieSessions(t)
	cookie := withSession(t, func(s *sessions.Session) {
		s.Values["user_email"] = "a@x.com"
		s.Values["user_name"] = "Alice"
		s.Values["email_verified"] = true
	})

	if rec := protectedStatus(t, RequireAuth, cookie); rec.Code != http.StatusOK {
		t.Errorf("Verified session should pass, got %d", rec.Code)
	}
}

func TestRequireAuth_UnverifiedGoesToVerify(t *testing.T) {
	useCookieSessions(t)
	cookie := withSession(t, func(s *sessions.Session) {
		s.Values["user_email"] = "a@x.com"
	})

	rec := protectedStatus(t, RequireAuth, cookie)
	if rec.Header().Get("Location") != "/verify" {
		t.Errorf("Expected redirect to /verify, got %s", rec.Header().Get("Location"))
	}
}

func TestRequireAPIAuth_Returns401(t *testing.T) {
	useCookieSessions(t)

	rec := protectedStatus(t, RequireAPIAuth, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected JSON error, got %s", rec.Header().Get("Content-Type"))
	}
}
