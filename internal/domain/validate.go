package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tour-booking-api/internal/core/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 违规字段名用 json 名，和请求体保持一致；json 隐藏的字段退回 bson 名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "bson"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "-" && name != "" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// checkStruct 执行 struct tag 校验 + 额外的跨字段约束，收集全部违规
func checkStruct(s any, messages map[string]string, extra ...apperr.Violation) error {
	vs := make([]apperr.Violation, 0, len(extra))
	if err := validate.Struct(s); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return apperr.Internal("validate", err)
		}
		for _, fe := range ves {
			vs = append(vs, apperr.Violation{
				Field:   fe.Field(),
				Rule:    fe.Tag(),
				Message: message(fe, messages),
			})
		}
	}
	vs = append(vs, extra...)
	if len(vs) == 0 {
		return nil
	}
	return apperr.Validation(vs)
}

func message(fe validator.FieldError, messages map[string]string) string {
	if m, ok := messages[fe.Field()+"."+fe.Tag()]; ok {
		return m
	}
	f, p := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", f)
	case "email":
		return fmt.Sprintf("%s must be a valid email", f)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, strings.ReplaceAll(p, " ", ", "))
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must have at least %s characters", f, p)
		}
		return fmt.Sprintf("%s must be at least %s", f, p)
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must have at most %s characters", f, p)
		}
		return fmt.Sprintf("%s must be at most %s", f, p)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", f, p)
	case "gte":
		return fmt.Sprintf("%s must be %s or more", f, p)
	case "lte":
		return fmt.Sprintf("%s must be %s or less", f, p)
	case "len":
		return fmt.Sprintf("%s must have exactly %s items", f, p)
	case "eqfield":
		return fmt.Sprintf("%s must match %s", f, p)
	default:
		return fmt.Sprintf("%s failed on the %s rule", f, fe.Tag())
	}
}
