package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"card-inventory/core/apperr"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the validator instance with the custom rules of the service.
type Validator struct {
	validate *validator.Validate
}

var (
	instance *Validator
	once     sync.Once
)

// Get returns the shared validator.
func Get() *Validator {
	once.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			return jsonName(f.Tag.Get("json"), f.Name)
		})
		_ = v.RegisterValidation("condition", validateCondition)
		instance = &Validator{validate: v}
	})
	return instance
}

// Struct validates s and returns an apperr validation error describing every failed field.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	fields := FormatValidationError(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return apperr.Validationf("%s", strings.Join(parts, "; "))
}

// FormatValidationError turns validator errors into a field to message map.
func FormatValidationError(err error) map[string]string {
	if err == nil {
		return nil
	}

	errs := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs["error"] = "invalid request format"
		return errs
	}

	for _, e := range validationErrors {
		field := e.Field()
		switch e.Tag() {
		case "required":
			errs[field] = "is required"
		case "oneof":
			errs[field] = fmt.Sprintf("must be one of [%s]", e.Param())
		case "condition":
			errs[field] = "must be a grade (NM, LP, MP, HP, DMG)"
		case "max":
			errs[field] = fmt.Sprintf("must be at most %s", e.Param())
		case "min":
			errs[field] = fmt.Sprintf("must be at least %s", e.Param())
		case "gte":
			errs[field] = fmt.Sprintf("must be at least %s", e.Param())
		case "ne":
			errs[field] = fmt.Sprintf("must not be %s", e.Param())
		default:
			errs[field] = "is invalid"
		}
	}

	return errs
}

var conditions = map[string]bool{"NM": true, "LP": true, "MP": true, "HP": true, "DMG": true}

func validateCondition(fl validator.FieldLevel) bool {
	c := fl.Field().String()
	if c == "" {
		return true
	}
	return conditions[strings.ToUpper(c)]
}

func jsonName(tag, fallback string) string {
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "" || name == "-" {
		return fallback
	}
	return name
}
