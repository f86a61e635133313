// Package validator checks struct fields against declarative rules in
// `validate` tags. Request bodies are validated by gin's binding; this
// package covers plain structs such as the loaded configuration.
package validator

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type Validator interface {
	Validate(interface{}) error
}

type validator struct {
	tagName string
}

func New() Validator {
	return &validator{tagName: "validate"}
}

// Validate walks obj's fields, applying tagged rules and recursing
// into nested structs. The first violation is returned with the full
// field path.
func (v *validator) Validate(obj interface{}) error {
	return v.validateStruct("", reflect.ValueOf(obj))
}

func (v *validator) validateStruct(path string, value reflect.Value) error {
	if value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}

	for i := 0; i < value.NumField(); i++ {
		field := value.Type().Field(i)
		if field.PkgPath != "" {
			continue
		}
		name := field.Name
		if path != "" {
			name = path + "." + field.Name
		}

		tag := field.Tag.Get(v.tagName)
		for _, rule := range strings.Split(tag, ",") {
			if rule == "" {
				continue
			}
			if err := v.validateRule(name, value.Field(i).Interface(), rule); err != nil {
				return err
			}
		}

		fv := value.Field(i)
		if fv.Kind() == reflect.Struct || (fv.Kind() == reflect.Ptr && fv.Type().Elem().Kind() == reflect.Struct) {
			if err := v.validateStruct(name, fv); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *validator) validateRule(field string, value interface{}, rule string) error {
	switch {
	case rule == "required":
		if isZero(value) {
			return fmt.Errorf("%s is required", field)
		}
	case strings.HasPrefix(rule, "min="):
		n, err := strconv.Atoi(strings.TrimPrefix(rule, "min="))
		if err != nil {
			return fmt.Errorf("%s has invalid rule %q", field, rule)
		}
		if err := validateMin(value, n); err != nil {
			return fmt.Errorf("%s %v", field, err)
		}
	case strings.HasPrefix(rule, "max="):
		n, err := strconv.Atoi(strings.TrimPrefix(rule, "max="))
		if err != nil {
			return fmt.Errorf("%s has invalid rule %q", field, rule)
		}
		if err := validateMax(value, n); err != nil {
			return fmt.Errorf("%s %v", field, err)
		}
	}
	return nil
}

func isZero(value interface{}) bool {
	v := reflect.ValueOf(value)
	return !v.IsValid() || v.IsZero()
}

func validateMin(value interface{}, min int) error {
	switch v := value.(type) {
	case string:
		if len(v) < min {
			return fmt.Errorf("must be at least %d characters long", min)
		}
	case int:
		if v < min {
			return fmt.Errorf("must be at least %d", min)
		}
	}
	return nil
}

func validateMax(value interface{}, max int) error {
	switch v := value.(type) {
	case string:
		if len(v) > max {
			return fmt.Errorf("must not exceed %d characters", max)
		}
	case int:
		if v > max {
			return fmt.Errorf("must not exceed %d", max)
		}
	}
	return nil
}
