// Package registration implements sign-up with emailed OTP verification and
// password login. Pending registrations are owned by the caller (the HTTP
// session) and passed in explicitly; nothing here keeps per-visitor state.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/config"
	"github.com/PhilHem/secureone/backend/logger"
	"github.com/PhilHem/secureone/backend/models"
	"github.com/PhilHem/secureone/backend/otp"

	"golang.org/x/crypto/bcrypt"
)

// CredentialStore persists verified accounts.
type CredentialStore interface {
	// FindByEmail returns apperr.ErrNotFound when no account matches exactly.
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// Create returns apperr.ErrUserExists if the email is already taken.
	Create(ctx context.Context, user *models.User) error
}

// Issuer generates a code and delivers it to the address.
type Issuer interface {
	Issue(ctx context.Context, email, name string) (string, error)
}

// Submission is the raw registration form.
type Submission struct {
	Name            string
	Email           string
	ConfirmEmail    string
	Password        string
	ConfirmPassword string
}

// PendingRegistration is an unverified sign-up held in the visitor's session.
// Password is plaintext until verification succeeds; it is hashed only when
// the account row is written.
type PendingRegistration struct {
	Name     string
	Email    string
	Password string
	Code     string
	IssuedAt time.Time
	Attempts int
}

type Service struct {
	users          CredentialStore
	issuer         Issuer
	ttl            time.Duration
	minPasswordLen int
	maxAttempts    int
	bcryptCost     int
	now            func() time.Time
	log            logger.Logger
}

func NewService(users CredentialStore, issuer Issuer, otpCfg config.OTPConfig, authCfg config.AuthConfig, log logger.Logger) *Service {
	cost := authCfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		users:          users,
		issuer:         issuer,
		ttl:            otpCfg.TTL,
		minPasswordLen: authCfg.MinPasswordLength,
		maxAttempts:    otpCfg.MaxAttempts,
		bcryptCost:     cost,
		now:            time.Now,
		log:            log,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// TTL is how long an issued code stays valid.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

func (s *Service) validate(sub Submission) error {
	switch {
	case sub.Email != sub.ConfirmEmail:
		return apperr.Invalid("confirm_email", "Emails do not match!")
	case sub.Password != sub.ConfirmPassword:
		return apperr.Invalid("confirm_password", "Passwords do not match!")
	case utf8.RuneCountInString(sub.Password) < s.minPasswordLen:
		return apperr.Invalid("password", fmt.Sprintf("Password must be at least %d characters!", s.minPasswordLen))
	case len(sub.Password) > maxPasswordBytes:
		return apperr.Invalid("password", fmt.Sprintf("Password must be at most %d bytes!", maxPasswordBytes))
	}
	return nil
}

// Submit validates the form, checks the email is free and sends a code. On
// success the caller must store the returned pending registration, replacing
// any earlier one.
func (s *Service) Submit(ctx context.Context, sub Submission) (*PendingRegistration, error) {
	sub.Email = strings.TrimSpace(sub.Email)
	sub.ConfirmEmail = strings.TrimSpace(sub.ConfirmEmail)
	if err := s.validate(sub); err != nil {
		return nil, err
	}

	_, err := s.users.FindByEmail(ctx, sub.Email)
	switch {
	case err == nil:
		s.log.Warn(ctx, "registration rejected: email exists", "email", sub.Email)
		return nil, apperr.ErrUserExists
	case !errors.Is(err, apperr.ErrNotFound):
		s.log.Error(ctx, "registration lookup failed", "email", sub.Email, "error", err.Error())
		return nil, apperr.Metadata("find user", err)
	}

	code, err := s.issuer.Issue(ctx, sub.Email, sub.Name)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "registration pending", "email", sub.Email)
	return &PendingRegistration{
		Name:     strings.TrimSpace(sub.Name),
		Email:    sub.Email,
		Password: sub.Password,
		Code:     code,
		IssuedAt: s.now(),
	}, nil
}

// Verify checks code against the pending registration and creates the
// account.
//
// The returned bool tells the caller whether to keep the pending
// registration: false means it is finished (verified, expired or exhausted)
// and must be removed from the session. When keep is true and the pending
// value changed (attempt counter), the caller stores the mutated value.
func (s *Service) Verify(ctx context.Context, pending *PendingRegistration, email, code string) (user *models.User, keep bool, err error) {
	if pending == nil {
		return nil, false, apperr.ErrSessionExpired
	}
	if s.now().Sub(pending.IssuedAt) > s.ttl {
		s.log.Warn(ctx, "otp expired", "email", pending.Email)
		return nil, false, apperr.ErrExpired
	}

	email = strings.TrimSpace(email)
	if email != "" && email != pending.Email {
		return nil, true, apperr.Invalid("email", "Email does not match the pending registration.")
	}

	if !otp.Equal(code, pending.Code) {
		pending.Attempts++
		s.log.Warn(ctx, "otp mismatch", "email", pending.Email, "attempts", pending.Attempts)
		if s.maxAttempts > 0 && pending.Attempts >= s.maxAttempts {
			return nil, false, apperr.ErrTooManyAttempts
		}
		return nil, true, apperr.ErrInvalidCode
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pending.Password), s.bcryptCost)
	if err != nil {
		// retrying with the same password cannot succeed
		s.log.Error(ctx, "password hash failed", "email", pending.Email, "error", err.Error())
		return nil, false, apperr.Invalid("password", "This password cannot be used. Please register again.")
	}

	user = &models.User{
		Name:     pending.Name,
		Email:    pending.Email,
		Password: string(hash),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperr.ErrUserExists) {
			s.log.Warn(ctx, "verification lost race: email registered", "email", pending.Email)
			return nil, false, apperr.ErrUserExists
		}
		s.log.Error(ctx, "account create failed", "email", pending.Email, "error", err.Error())
		return nil, true, apperr.Metadata("create user", err)
	}

	s.log.Info(ctx, "user registered", "email", user.Email, "user_email", user.Email)
	return user, false, nil
}

// Resend issues a new code for the pending registration. The returned value
// replaces the old one, which stops the old code from verifying. On failure
// the old pending registration is still valid.
func (s *Service) Resend(ctx context.Context, pending *PendingRegistration) (*PendingRegistration, error) {
	if pending == nil {
		return nil, apperr.ErrSessionExpired
	}
	code, err := s.issuer.Issue(ctx, pending.Email, pending.Name)
	if err != nil {
		return nil, err
	}
	next := *pending
	next.Code = code
	next.IssuedAt = s.now()
	next.Attempts = 0
	s.log.Info(ctx, "otp resent", "email", pending.Email)
	return &next, nil
}

// Login returns the account when the password matches. Unknown email and
// wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			s.log.Warn(ctx, "login failed: user not found", "email", email)
			return nil, apperr.ErrInvalidCredentials
		}
		s.log.Error(ctx, "login lookup failed", "email", email, "error", err.Error())
		return nil, apperr.Metadata("find user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.log.Warn(ctx, "login failed: invalid password", "email", email)
		return nil, apperr.ErrInvalidCredentials
	}
	s.log.Info(ctx, "user logged in", "email", email, "user_email", email)
	return user, nil
}
