package models

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"diligencego/internal/catalog"
)

// ErrInvalidDetails is matched by every *ValidationError.
var ErrInvalidDetails = errors.New("invalid basic details")

// BasicDetails describes the startup. It is captured once in the first
// wizard step and never edited afterwards.
type BasicDetails struct {
	StartupName        string           `json:"startupName" validate:"min=2"`
	Email              string           `json:"email" validate:"required,email"`
	YearOfRegistration int              `json:"yearOfRegistration" validate:"min=1900,notfuture"`
	NumberOfEmployees  int              `json:"numberOfEmployees" validate:"min=1"`
	Field              catalog.Industry `json:"field" validate:"industry"`
}

// FieldError is a single failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every failed field, in declaration order.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, " ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDetails }

// Message returns the message for field, or "".
func (e *ValidationError) Message(field string) string {
	for _, f := range e.Fields {
		if f.Field == field {
			return f.Message
		}
	}
	return ""
}

var messages = map[string]map[string]string{
	"startupName": {
		"min": "Startup name must be at least 2 characters.",
	},
	"email": {
		"required": "Invalid email address.",
		"email":    "Invalid email address.",
	},
	"yearOfRegistration": {
		"min":       "Invalid year.",
		"notfuture": "Year cannot be in the future.",
	},
	"numberOfEmployees": {
		"min": "There must be at least one employee.",
	},
	"field": {
		"industry": "Please select a valid industry.",
	},
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
	// now is swapped in tests that pin the current year.
	now = time.Now
)

func detailsValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
			return fl.Field().Int() <= int64(now().Year())
		})
		_ = v.RegisterValidation("industry", func(fl validator.FieldLevel) bool {
			return catalog.Industry(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

// Normalize trims user input in place.
func (d *BasicDetails) Normalize() {
	d.StartupName = strings.TrimSpace(d.StartupName)
	d.Email = strings.TrimSpace(d.Email)
	if ind, ok := catalog.ParseIndustry(string(d.Field)); ok {
		d.Field = ind
	}
}

// Validate normalizes d and returns a *ValidationError when any rule fails.
func (d *BasicDetails) Validate() error {
	d.Normalize()
	err := detailsValidator().Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	seen := make(map[string]bool)
	for _, fe := range verrs {
		field := fe.Field()
		if seen[field] {
			continue
		}
		seen[field] = true
		msg := messages[field][fe.Tag()]
		if msg == "" {
			msg = field + " is invalid."
		}
		out.Fields = append(out.Fields, FieldError{Field: field, Message: msg})
	}
	return out
}
