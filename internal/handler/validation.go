package handler

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var permissionSegment = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// RegisterValidators makes field errors report json names and adds the
// permsegment tag used by permission payloads
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v.RegisterValidation("permsegment", func(fl validator.FieldLevel) bool {
		return permissionSegment.MatchString(fl.Field().String())
	})
}
