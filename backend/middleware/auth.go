package middleware

import (
	"net/http"

	"github.com/PhilHem/secureone/backend/handlers"
)

// RequireAuth requires a logged-in session with a verified email. A visitor
// who is mid-registration is sent to finish verification instead of login.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, _ := handlers.CurrentUser(r)
		if email == "" {
			if handlers.HasPending(r) {
				http.Redirect(w, r, "/verify", http.StatusSeeOther)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if !handlers.IsVerified(r) {
			http.Redirect(w, r, "/verify", http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}

// RequireAPIAuth is RequireAuth for JSON endpoints: it answers 401 instead
// of redirecting.
func RequireAPIAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, _ := handlers.CurrentUser(r)
		if email == "" || !handlers.IsVerified(r) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"authentication required"}`))
			return
		}
		next(w, r)
	}
}
