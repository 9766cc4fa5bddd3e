package handler

import (
	"errors"
	"time"

	"hrms/internal/apperror"
	"hrms/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// bindJSON decodes the body into req; validator failures keep their type so the
// error handler can report per-field details
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			_ = c.Error(err)
			return false
		}
		appErr := middleware.Translate(err)
		if appErr.Kind == apperror.KindInternal {
			appErr = apperror.Validation("invalid body format").WithCause(err)
		}
		_ = c.Error(appErr)
		return false
	}
	return true
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		_ = c.Error(apperror.Validation("invalid "+name,
			apperror.FieldError{Field: name, Message: "must be a UUID"}))
		return uuid.Nil, false
	}
	return id, true
}

func queryUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		_ = c.Error(apperror.Validation("invalid "+name,
			apperror.FieldError{Field: name, Message: "must be a UUID"}))
		return nil, false
	}
	return &id, true
}

// queryTime accepts RFC 3339 timestamps or plain YYYY-MM-DD dates
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, true
		}
	}
	_ = c.Error(apperror.Validation("invalid "+name,
		apperror.FieldError{Field: name, Message: "must be RFC 3339 or YYYY-MM-DD"}))
	return nil, false
}
