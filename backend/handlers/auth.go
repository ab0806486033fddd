package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/config"
	"github.com/PhilHem/secureone/backend/files"
	"github.com/PhilHem/secureone/backend/registration"
	"github.com/PhilHem/secureone/frontend/templates"
)

var Registration *registration.Service

func HomePage(w http.ResponseWriter, r *http.Request) {
	templates.Home(page(w, r)).Render(r.Context(), w)
}

func RegisterPage(w http.ResponseWriter, r *http.Request) {
	if email, _ := CurrentUser(r); email != "" {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	templates.Register(page(w, r), templates.RegisterForm{}, config.C.Auth.MinPasswordLength).Render(r.Context(), w)
}

func Register(w http.ResponseWriter, r *http.Request) {
	sub := registration.Submission{
		Name:            r.FormValue("name"),
		Email:           r.FormValue("email"),
		ConfirmEmail:    r.FormValue("confirm_email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}
	session := getSession(r)

	pending, err := Registration.Submit(r.Context(), sub)
	if err != nil {
		slog.WarnContext(r.Context(), "registration failed", "source", "auth", "email", sub.Email, "error", err.Error())
		if errors.Is(err, apperr.ErrUserExists) {
			addFlash(session, "info", apperr.Message(err))
			saveSession(w, r, session)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		addFlash(session, "error", apperr.Message(err))
		saveSession(w, r, session)
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}

	setPending(session, pending)
	addFlash(session, "success", "OTP sent to your email. Please check your inbox.")
	saveSession(w, r, session)
	http.Redirect(w, r, "/verify", http.StatusSeeOther)
}

func VerifyPage(w http.ResponseWriter, r *http.Request) {
	session := getSession(r)
	pending := pendingFrom(session)
	if pending == nil {
		addFlash(session, "error", apperr.Message(apperr.ErrSessionExpired))
		saveSession(w, r, session)
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}
	templates.Verify(page(w, r), pending.Email, Registration.TTL()).Render(r.Context(), w)
}

func Verify(w http.ResponseWriter, r *http.Request) {
	session := getSession(r)
	pending := pendingFrom(session)

	user, keep, err := Registration.Verify(r.Context(), pending, r.FormValue("email"), r.FormValue("otp"))
	if err != nil {
		if keep {
			setPending(session, pending)
		} else {
			clearPending(session)
		}
		addFlash(session, "error", apperr.Message(err))
		saveSession(w, r, session)
		http.Redirect(w, r, verifyFailureTarget(err, keep), http.StatusSeeOther)
		return
	}

	clearPending(session)
	setLogin(session, user.Email, user.Name)
	addFlash(session, "success", "Registration successful! Welcome, "+user.Name+".")
	saveSession(w, r, session)

	slog.InfoContext(r.Context(), "user verified", "source", "auth", "user_email", user.Email)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// verifyFailureTarget picks where a failed verification continues.
func verifyFailureTarget(err error, keep bool) string {
	switch {
	case errors.Is(err, apperr.ErrUserExists):
		return "/login"
	case keep:
		return "/verify"
	default:
		return "/register"
	}
}

func ResendOTP(w http.ResponseWriter, r *http.Request) {
	session := getSession(r)
	pending := pendingFrom(session)
	if pending == nil {
		addFlash(session, "error", apperr.Message(apperr.ErrSessionExpired))
		saveSession(w, r, session)
		http.Redirect(w, r, "/register", http.StatusSeeOther)
		return
	}

	next, err := Registration.Resend(r.Context(), pending)
	if err != nil {
		addFlash(session, "error", apperr.Message(err))
		saveSession(w, r, session)
		http.Redirect(w, r, "/verify", http.StatusSeeOther)
		return
	}

	setPending(session, next)
	addFlash(session, "success", "A new OTP has been sent to your email.")
	saveSession(w, r, session)
	http.Redirect(w, r, "/verify", http.StatusSeeOther)
}

func LoginPage(w http.ResponseWriter, r *http.Request) {
	if email, _ := CurrentUser(r); email != "" {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	templates.Login(page(w, r), "").Render(r.Context(), w)
}

func Login(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	user, err := Registration.Login(r.Context(), email, password)
	if err != nil {
		p := page(w, r)
		p.Flashes = append(p.Flashes, templates.Flash{Category: "error", Message: apperr.Message(err)})
		w.WriteHeader(http.StatusUnauthorized)
		templates.Login(p, email).Render(r.Context(), w)
		return
	}

	session := getSession(r)
	setLogin(session, user.Email, user.Name)
	addFlash(session, "success", "Welcome back, "+user.Name+"!")
	saveSession(w, r, session)

	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func Logout(w http.ResponseWriter, r *http.Request) {
	session := getSession(r)
	email, _ := session.Values[keyUserEmail].(string)
	slog.InfoContext(r.Context(), "user logged out", "source", "auth", "user_email", email)

	session.Values = make(map[interface{}]interface{})
	session.Options.MaxAge = -1
	saveSession(w, r, session)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func ProfilePage(w http.ResponseWriter, r *http.Request) {
	email, name := CurrentUser(r)
	p := page(w, r)

	list, err := Files.List(r.Context(), email)
	if err != nil {
		p.Flashes = append(p.Flashes, templates.Flash{Category: "error", Message: apperr.Message(err)})
	}
	totals := files.Summarize(list)
	templates.Profile(p, name, email, totals.Files, totals.MB()).Render(r.Context(), w)
}
