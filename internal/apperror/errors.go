package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindValidation
	KindNotFound
	KindConflict
	KindTooManyRequests
	KindInvalidState
	KindReconciliationFailed
)

// Status maps a kind to its HTTP status code
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindReconciliationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) defaultCode() string {
	switch k {
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindNotFound:
		return "RECORD_NOT_FOUND"
	case KindConflict:
		return "UNIQUE_CONSTRAINT_VIOLATION"
	case KindTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindReconciliationFailed:
		return "RECONCILIATION_FAILED"
	default:
		return "INTERNAL_ERROR"
	}
}

// FieldError describes one invalid request field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the single error type surfaced to the response envelope
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind and code, so sentinel values work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

func (e *Error) Status() int {
	return e.Kind.Status()
}

// WithCause returns a copy of e wrapping cause
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.Cause = cause
	return &c
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Code: kind.defaultCode(), Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// WithCode builds an error whose envelope code differs from the kind default
func WithCode(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func InvalidState(message string) *Error { return New(KindInvalidState, message) }

func Validation(message string, details ...FieldError) *Error {
	e := New(KindValidation, message)
	if len(details) > 0 {
		e.Details = details
	}
	return e
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Code: KindInternal.defaultCode(), Message: "internal server error", Cause: cause}
}

func ReconciliationFailed(cause error) *Error {
	return &Error{Kind: KindReconciliationFailed, Code: KindReconciliationFailed.defaultCode(), Message: "reconciliation failed", Cause: cause}
}

// As extracts an *Error from err's chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// FromStore translates repository errors into the taxonomy.
// Errors that already are *Error pass through untouched.
func FromStore(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("record not found").WithCause(err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return Conflict("record already exists").WithCause(err)
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return Validation("referenced record does not exist").WithCause(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return Conflict("record already exists").WithCause(err)
		case pgForeignKeyViolation:
			return Validation("referenced record does not exist").WithCause(err)
		}
	}
	return Internal(err)
}
