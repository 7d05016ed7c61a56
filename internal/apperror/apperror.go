// Package apperror defines the error taxonomy shared by the credential store,
// the authentication service and the HTTP boundary.
//
// Every domain failure is an *AppError wrapping one of the sentinels below, so
// callers classify with errors.Is and read the client-safe text from Message.
//
// HTTP MAPPING (see handler/response.go):
//
//	ErrInvalidInput        → 400 invalid_input
//	ErrWeakCredential      → 400 weak_credential
//	ErrDuplicateAccount    → 409 duplicate_account
//	ErrInvalidCredentials  → 401 invalid_credentials
//	ErrStorage             → 500 storage_error
//	anything else          → 500 internal_error
//
// ErrAuditWrite and ErrConstraintViolation never reach a client on their own:
// the service folds them into one of the kinds above.
package apperror

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Compare with errors.Is, never with ==, since an AppError
// or an errors.Join result sits in between.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrWeakCredential      = errors.New("weak credential")
	ErrDuplicateAccount    = errors.New("duplicate account")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStorage             = errors.New("storage error")
	ErrAuditWrite          = errors.New("audit write failure")
	ErrConstraintViolation = errors.New("constraint violation")
)

// invalidCredentialsMessage is shared by every failed login so the response
// never tells an unknown email apart from a wrong password.
const invalidCredentialsMessage = "invalid email or password"

// AppError is a classified failure.
//
// WHY A SENTINEL PLUS A STRUCT?
// The sentinel answers "what kind" for errors.Is; the struct carries the text
// a client may see (Message, Field) apart from the text it must not (Cause).
// Unwrap returns both, so errors.Is finds the kind and errors.As still reaches
// the driver error underneath.
type AppError struct {
	Err     error  // sentinel kind
	Message string // client-safe message
	Field   string // optional: offending input field
	Cause   error  // optional: underlying infrastructure error, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

// InvalidInput reports a missing or malformed request value. field names the
// JSON field and is empty when the whole body is unusable.
func InvalidInput(field, message string) *AppError {
	return &AppError{
		Err:     ErrInvalidInput,
		Message: message,
		Field:   field,
	}
}

// WeakCredential reports a password outside the accepted length range.
func WeakCredential(field, message string) *AppError {
	return &AppError{
		Err:     ErrWeakCredential,
		Message: message,
		Field:   field,
	}
}

// DuplicateAccount reports that the normalized email is already registered,
// whether the service found the row first or the unique index caught a race.
func DuplicateAccount() *AppError {
	return &AppError{
		Err:     ErrDuplicateAccount,
		Message: "an account with this email already exists",
		Field:   "email",
	}
}

// InvalidCredentials returns the single, deliberately uninformative login
// failure. It carries no field.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: invalidCredentialsMessage,
	}
}

// Storage wraps an infrastructure failure of operation op.
// HTTP handlers map this to 500 and never echo the cause.
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: fmt.Sprintf("storage unavailable while trying to %s", op),
		Cause:   cause,
	}
}

// AuditWrite reports that a login attempt could not be recorded.
func AuditWrite(cause error) *AppError {
	return &AppError{
		Err:     ErrAuditWrite,
		Message: "login attempt could not be recorded",
		Cause:   cause,
	}
}

// ConstraintViolation is raised by the store when an insert hits a unique index.
func ConstraintViolation(field, value string) *AppError {
	return &AppError{
		Err:     ErrConstraintViolation,
		Message: fmt.Sprintf("%s %q already exists", field, value),
		Field:   field,
	}
}
