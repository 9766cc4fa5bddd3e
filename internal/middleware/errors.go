package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"hrms/internal/apperror"
	"hrms/internal/logger"
	"hrms/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// ErrorHandler is the single place errors become response envelopes.
// Handlers and middleware report failures with c.Error and return.
func ErrorHandler(release bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer handle(c, release)
		c.Next()
	}
}

func handle(c *gin.Context, release bool) {
	if ret := recover(); ret != nil {
		err, ok := ret.(error)
		if !ok {
			err = fmt.Errorf("%v", ret)
		}
		logger.Get().WithFields(logrus.Fields{
			"path":  c.Request.URL.Path,
			"stack": string(debug.Stack()),
		}).Error("panic recovered: " + err.Error())
		respond(c, apperror.Internal(err), release)
		return
	}
	if ginErr := c.Errors.Last(); ginErr != nil {
		respond(c, Translate(ginErr.Err), release)
	}
}

// Translate maps any error onto the taxonomy
func Translate(err error) *apperror.Error {
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make([]apperror.FieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			details = append(details, apperror.FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		}
		return apperror.Validation("validation failed", details...).WithCause(err)
	}

	if errors.Is(err, io.EOF) {
		return apperror.Validation("request body is required").WithCause(err)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return apperror.Validation("invalid body format").WithCause(err)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperror.Validation("invalid body format",
			apperror.FieldError{Field: typeErr.Field, Message: "expected " + typeErr.Type.String()}).WithCause(err)
	}

	appErr, _ := apperror.As(apperror.FromStore(err))
	return appErr
}

func respond(c *gin.Context, err *apperror.Error, release bool) {
	message, details := err.Message, err.Details
	if err.Kind == apperror.KindInternal {
		logger.LogError("middleware", "ErrorHandler", c.Request.Method+" "+c.Request.URL.Path, nil, err)
		if !release && err.Cause != nil {
			details = err.Cause.Error()
		}
	}

	if c.Writer.Written() {
		return
	}
	c.AbortWithStatusJSON(err.Status(), response.Error(err.Code, message, details))
}

func fieldMessage(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("failed on '%s=%s'", fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("failed on '%s'", fe.Tag())
}
