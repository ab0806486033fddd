package middleware

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PhilHem/secureone/backend/handlers"
)

const testSecret = "test-secret-key-32-chars-long!!!"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// issueToken performs a GET and returns the cookies it set.
func issueToken(t *testing.T, handler http.Handler) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/form", nil))
	cookies := rec.Result().Cookies()
	for _, c := range cookies {
		if c.Name == "_csrf" {
			return cookies
		}
	}
	t.Fatal("No CSRF token cookie set")
	return nil
}

func tokenOf(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if c.Name == "_csrf" {
			return c.Value
		}
	}
	return ""
}

// RED: Test that POST without CSRF token is rejected
func TestCSRF_RejectsWithoutToken(t *testing.T) {
	handler := NewCSRFProtection(testSecret, false).Protect(okHandler())

	req := httptest.NewRequest("POST", "/form", strings.NewReader("data=test"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("POST without CSRF token should be rejected, got %d", rec.Code)
	}
}

// RED: Test that POST with valid CSRF token is allowed
func TestCSRF_AllowsWithValidToken(t *testing.T) {
	handler := NewCSRFProtection(testSecret, false).Protect(okHandler())
	cookies := issueToken(t, handler)

	postReq := httptest.NewRequest("POST", "/form", strings.NewReader("_csrf="+tokenOf(cookies)))
	postReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		postReq.AddCookie(c)
	}
	postRec := httptest.NewRecorder()

	handler.ServeHTTP(postRec, postReq)

	if postRec.Code != http.StatusOK {
		t.Errorf("POST with valid CSRF token should be allowed, got %d", postRec.Code)
	}
}

func TestCSRF_RejectsMismatchedToken(t *testing.T) {
	csrf := NewCSRFProtection(testSecret, false)
	handler := csrf.Protect(okHandler())
	cookies := issueToken(t, handler)

	other, _ := csrf.generateToken()
	req := httptest.NewRequest("POST", "/form", strings.NewReader("_csrf="+other))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Token that differs from the cookie should be rejected, got %d", rec.Code)
	}
}

func TestCSRF_RejectsForgedCookie(t *testing.T) {
	handler := NewCSRFProtection(testSecret, false).Protect(okHandler())
	forged, _ := NewCSRFProtection("another-secret-key-32-chars-long", false).generateToken()

	req := httptest.NewRequest("POST", "/form", strings.NewReader("_csrf="+forged))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "_csrf", Value: forged})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Token signed with another secret should be rejected, got %d", rec.Code)
	}
}

func TestCSRF_AcceptsHeaderToken(t *testing.T) {
	handler := NewCSRFProtection(testSecret, false).Protect(okHandler())
	cookies := issueToken(t, handler)

	req := httptest.NewRequest("POST", "/files/x/delete", nil)
	req.Header.Set("X-CSRF-Token", tokenOf(cookies))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Header token should be accepted, got %d", rec.Code)
	}
}

func TestCSRF_MultipartTokenAndOversizedBody(t *testing.T) {
	handler := NewCSRFProtection(testSecret, false).Protect(okHandler())
	cookies := issueToken(t, handler)

	build := func(payload string) (*bytes.Buffer, string) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("_csrf", tokenOf(cookies))
		fw, _ := mw.CreateFormFile("file", "a.txt")
		fw.Write([]byte(payload))
		mw.Close()
		return &body, mw.FormDataContentType()
	}

	body, ct := build("hello")
	req := httptest.NewRequest("POST", "/files", body)
	req.Header.Set("Content-Type", ct)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("Multipart form with token should be allowed, got %d", rec.Code)
	}

	limited := LimitBody(512)(handler)
	body, ct = build(strings.Repeat("x", 4096))
	req = httptest.NewRequest("POST", "/files", body)
	req.Header.Set("Content-Type", ct)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	limited.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Oversized body should be rejected with 413, got %d", rec.Code)
	}
}

// RED: Test that GET requests are not protected (but get token set)
func TestCSRF_GETNotProtected(t *testing.T) {
	var seen string
	handler := NewCSRFProtection(testSecret, true).Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = handlers.CSRFToken(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/page", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("GET should not require CSRF token, got %d", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || !cookies[0].Secure {
		t.Fatalf("Expected one Secure CSRF cookie, got %+v", cookies)
	}
	if seen == "" || seen != cookies[0].Value {
		t.Errorf("Handler should see the issued token in its context, got %q", seen)
	}
}
