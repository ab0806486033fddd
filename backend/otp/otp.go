// Package otp issues one-time verification codes and delivers them by email.
package otp

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/PhilHem/secureone/backend/apperr"
	"github.com/PhilHem/secureone/backend/config"
	"github.com/PhilHem/secureone/backend/logger"
	"github.com/PhilHem/secureone/backend/mailer"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Issuer creates a fresh code for every call. Each code is derived from a
// newly generated random TOTP secret, so codes are independent of each other
// and of the clock.
type Issuer struct {
	sender mailer.Sender
	name   string
	digits otp.Digits
	ttl    time.Duration
	now    func() time.Time
	log    logger.Logger
}

func NewIssuer(sender mailer.Sender, cfg config.OTPConfig, log logger.Logger) *Issuer {
	digits := otp.DigitsSix
	if cfg.Digits == 8 {
		digits = otp.DigitsEight
	}
	return &Issuer{
		sender: sender,
		name:   cfg.Issuer,
		digits: digits,
		ttl:    cfg.TTL,
		now:    time.Now,
		log:    log,
	}
}

// Generate returns a new numeric code. Leading zeros are kept.
func (i *Issuer) Generate(email string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      i.name,
		AccountName: email,
		Digits:      i.digits,
	})
	if err != nil {
		return "", fmt.Errorf("generate otp secret: %w", err)
	}
	code, err := totp.GenerateCodeCustom(key.Secret(), i.now(), totp.ValidateOpts{
		Period:    30,
		Digits:    i.digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("generate otp code: %w", err)
	}
	return code, nil
}

// Issue generates a code and emails it to email. A transport failure comes
// back as *apperr.DeliveryError and the code must be discarded.
func (i *Issuer) Issue(ctx context.Context, email, name string) (string, error) {
	code, err := i.Generate(email)
	if err != nil {
		return "", err
	}

	subject := fmt.Sprintf("Your %s verification code", i.name)
	if err := i.sender.Send(ctx, email, subject, Body(name, code, i.ttl)); err != nil {
		i.log.Warn(ctx, "otp delivery failed", "email", email, "error", err.Error())
		return "", &apperr.DeliveryError{Err: err}
	}

	i.log.Info(ctx, "otp sent", "email", email)
	return code, nil
}

// Body renders the verification email text.
func Body(name, code string, ttl time.Duration) string {
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hello %s,\n\nYour verification code is: %s\n\nIt expires in %d minutes. If you did not request it, ignore this email.\n",
		name, code, int(ttl.Minutes()))
}

// Equal compares a submitted code with the issued one in constant time.
func Equal(submitted, issued string) bool {
	if issued == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(issued)) == 1
}
