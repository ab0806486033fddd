package apperr

import "errors"

// Message returns the text shown to the user for err. It never includes
// internal detail from backing stores.
func Message(err error) string {
	var ve *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, ErrDelivery):
		return "Failed to send OTP. Please try again."
	case errors.Is(err, ErrExpired):
		return "OTP expired. Please register again."
	case errors.Is(err, ErrInvalidCode):
		return "Invalid OTP. Please try again."
	case errors.Is(err, ErrTooManyAttempts):
		return "Too many invalid codes. Please register again."
	case errors.Is(err, ErrSessionExpired):
		return "Session expired. Please register again."
	case errors.Is(err, ErrUserExists):
		return "User already exists! Please login."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAccess):
		return "File not found"
	case errors.Is(err, ErrStorage):
		layer, _ := LayerOf(err)
		if layer == LayerBlob {
			return "File storage is unavailable. Please try again."
		}
		return "File records are unavailable. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
