// Package validate checks request values before they reach the network.
// Failures come back as ErrValidation with a message naming each bad field by
// its JSON name.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/tansive/crmctl/internal/common/apperrors"
)

// ErrValidation marks input rejected before any request was sent.
var ErrValidation = apperrors.New("invalid input").SetExpandError(true)

var (
	v    *validator.Validate
	once sync.Once
)

// V returns the shared validator.
func V() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonName)
		// notblank is not one of the baked-in tags
		_ = v.RegisterValidation("notblank", validators.NotBlank)
	})
	return v
}

// Struct validates s and returns an ErrValidation describing every failure.
func Struct(s any) error {
	err := V().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrValidation.Err(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return ErrValidation.MsgErr(strings.Join(msgs, "; "), err)
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
