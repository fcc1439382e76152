package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator"

	"github.com/aryan0dhankhar/mesledger/internal/domain"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// validateModel runs struct tag validation followed by the model's own
// Check, if any. Failures become *domain.ValidationError.
func validateModel(v any) error {
	if err := structValidator().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.Invalid(fe.Field(), describeTag(fe))
		}
		return domain.Invalid("", err.Error())
	}
	if c, ok := v.(domain.Checker); ok {
		return c.Check()
	}
	return nil
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "ltefield":
		return "must not exceed " + fe.Param()
	}
	return "failed " + fe.Tag()
}

// decodeStrict fills dst from attrs, rejecting attributes the model does
// not declare.
func decodeStrict(attrs domain.Attrs, dst any) error {
	data, err := json.Marshal(attrs)
	if err != nil {
		return domain.Invalid("", fmt.Sprintf("attributes are not serializable: %v", err))
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.Invalid(typeErr.Field, "has the wrong type")
		}
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			return vErr
		}
		return domain.Invalid("", err.Error())
	}
	return nil
}
