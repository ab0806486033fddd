package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/PhilHem/secureone/backend/config"
	"github.com/PhilHem/secureone/backend/registration"
	"github.com/PhilHem/secureone/frontend/templates"

	"github.com/gorilla/sessions"
	"github.com/rbcervilla/redisstore/v9"
	"github.com/redis/go-redis/v9"
)

const sessionName = "session"

// Session keys.
const (
	keyPending   = "pending_registration"
	keyOTPEmail  = "otp_email"
	keyUserEmail = "user_email"
	keyUserName  = "user_name"
	keyVerified  = "email_verified"
)

const minSecretLength = 32

var (
	Store          sessions.Store
	SessionOptions *sessions.Options
)

func init() {
	gob.Register(&registration.PendingRegistration{})
	gob.Register(templates.Flash{})
}

// InitSession builds the session store selected by config.C.Session. The
// secret is mandatory and must be at least 32 characters.
func InitSession() error {
	sc := config.C.Session
	if sc.Secret == "" {
		return fmt.Errorf("session secret is required (set SESSION_SECRET)")
	}
	if len(sc.Secret) < minSecretLength {
		return fmt.Errorf("session secret must be at least %d characters", minSecretLength)
	}

	hashKey := []byte(sc.Secret)
	blockKey, err := encryptionKey(sc)
	if err != nil {
		return err
	}

	SessionOptions = &sessions.Options{
		Path:     "/",
		MaxAge:   int(sc.Timeout.Seconds()),
		HttpOnly: true,
		Secure:   config.C.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	}

	switch sc.Backend {
	case "filesystem", "":
		if err := os.MkdirAll(sc.Path, 0700); err != nil {
			return fmt.Errorf("create session directory: %w", err)
		}
		fs := sessions.NewFilesystemStore(sc.Path, hashKey, blockKey)
		fs.Options = SessionOptions
		fs.MaxAge(SessionOptions.MaxAge)
		Store = fs
	case "cookie":
		cs := sessions.NewCookieStore(hashKey, blockKey)
		cs.Options = SessionOptions
		cs.MaxAge(SessionOptions.MaxAge)
		Store = cs
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		})
		rs, err := redisstore.NewRedisStore(context.Background(), client)
		if err != nil {
			return fmt.Errorf("connect redis session store: %w", err)
		}
		rs.KeyPrefix("secureone_session_")
		rs.Options(*SessionOptions)
		Store = rs
	default:
		return fmt.Errorf("unknown session backend %q", sc.Backend)
	}
	return nil
}

// encryptionKey returns the configured AES key or derives a 32-byte one from
// the secret.
func encryptionKey(sc config.SessionConfig) ([]byte, error) {
	if sc.EncryptionKey != "" {
		switch len(sc.EncryptionKey) {
		case 16, 24, 32:
			return []byte(sc.EncryptionKey), nil
		default:
			return nil, fmt.Errorf("session encryption key must be 16, 24 or 32 bytes")
		}
	}
	sum := sha256.Sum256([]byte("session-encryption:" + sc.Secret))
	return sum[:], nil
}

// getSession never fails: an undecodable cookie yields a fresh session.
func getSession(r *http.Request) *sessions.Session {
	session, _ := Store.Get(r, sessionName)
	return session
}

// CurrentUser returns the authenticated email and name, or "" when the
// session holds no login.
var CurrentUser = func(r *http.Request) (email, name string) {
	session := getSession(r)
	email, _ = session.Values[keyUserEmail].(string)
	name, _ = session.Values[keyUserName].(string)
	return email, name
}

// IsVerified reports whether the session's login has a verified email.
func IsVerified(r *http.Request) bool {
	verified, _ := getSession(r).Values[keyVerified].(bool)
	return verified
}

// HasPending reports whether the session holds an unverified registration.
func HasPending(r *http.Request) bool {
	return pendingFrom(getSession(r)) != nil
}

// pendingFrom returns the staged registration, or nil if there is none or it
// does not belong to the session's OTP target.
func pendingFrom(session *sessions.Session) *registration.PendingRegistration {
	pending, ok := session.Values[keyPending].(*registration.PendingRegistration)
	if !ok || pending == nil {
		return nil
	}
	if target, _ := session.Values[keyOTPEmail].(string); target != pending.Email {
		return nil
	}
	return pending
}

func setPending(session *sessions.Session, pending *registration.PendingRegistration) {
	session.Values[keyPending] = pending
	session.Values[keyOTPEmail] = pending.Email
}

func clearPending(session *sessions.Session) {
	delete(session.Values, keyPending)
	delete(session.Values, keyOTPEmail)
}

func setLogin(session *sessions.Session, email, name string) {
	session.Values[keyUserEmail] = email
	session.Values[keyUserName] = name
	session.Values[keyVerified] = true
}

func addFlash(session *sessions.Session, category, message string) {
	session.AddFlash(templates.Flash{Category: category, Message: message})
}

func takeFlashes(session *sessions.Session) []templates.Flash {
	var out []templates.Flash
	for _, f := range session.Flashes() {
		if flash, ok := f.(templates.Flash); ok {
			out = append(out, flash)
		}
	}
	return out
}

// saveSession persists the session and logs a failure; the response is
// already committed to a redirect or page by then.
func saveSession(w http.ResponseWriter, r *http.Request, session *sessions.Session) {
	if err := session.Save(r, w); err != nil {
		slog.ErrorContext(r.Context(), "session save failed", "source", "session", "error", err.Error())
	}
}

// page collects the shared page data and consumes pending flashes.
func page(w http.ResponseWriter, r *http.Request) templates.Page {
	session := getSession(r)
	flashes := takeFlashes(session)
	if len(flashes) > 0 {
		saveSession(w, r, session)
	}
	_, name := CurrentUser(r)
	return templates.Page{
		CSRF:     CSRFToken(r),
		Flashes:  flashes,
		UserName: name,
	}
}

type csrfKey struct{}

// WithCSRFToken attaches the request's CSRF token for page rendering.
func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfKey{}, token)
}

func CSRFToken(r *http.Request) string {
	token, _ := r.Context().Value(csrfKey{}).(string)
	return token
}
