package identity

import "github.com/bissquit/airq-auth/internal/pkg/apperr"

// Service errors. Messages are shown to clients as-is.
var (
	ErrEmailExists        = apperr.New(apperr.KindConflict, "Email is already registered")
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "Invalid email or password")
	ErrInvalidToken       = apperr.New(apperr.KindUnauthorized, "invalid or expired token")
	ErrUserNotFound       = apperr.New(apperr.KindNotFound, "User not found")
)

// Request validation messages.
const (
	MsgValidation         = "Validation Error"
	MsgMissingCredentials = "Please provide email and password"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72
