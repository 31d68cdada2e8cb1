package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const invalidDataMessage = "The given data was invalid."

var registerOnce sync.Once

// RegisterValidators installs the custom rules and the json field naming on
// gin's validator. Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})

		v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return strings.TrimSpace(fl.Field().String()) != ""
		})

		v.RegisterValidation("due_date", func(fl validator.FieldLevel) bool {
			_, err := parseDueDate(fl.Field().String())
			return err == nil
		})
	})
}

// parseDueDate accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date,
// which is taken as midnight UTC.
func parseDueDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// dueDateField parses an optional due_date from a bound request. On a bad
// value it writes the 422 and reports false.
func dueDateField(c *gin.Context, raw *string) (*time.Time, bool) {
	if raw == nil {
		return nil, true
	}
	due, err := parseDueDate(*raw)
	if err != nil {
		validationFailed(c, fieldErrors{
			"due_date": {"The due_date field must be a valid date."},
		})
		return nil, false
	}
	return &due, true
}

// bindJSON binds and validates the body, keeping a copy for later presence
// checks. An empty body validates as an empty object.
func bindJSON(c *gin.Context, obj interface{}) error {
	err := c.ShouldBindBodyWith(obj, binding.JSON)
	if errors.Is(err, io.EOF) {
		return binding.Validator.ValidateStruct(obj)
	}
	return err
}

// explicitNull reports whether the bound body set key to JSON null.
func explicitNull(c *gin.Context, key string) bool {
	body, ok := c.Get(gin.BodyBytesKey)
	if !ok {
		return false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body.([]byte), &raw); err != nil {
		return false
	}
	value, present := raw[key]
	return present && bytes.Equal(bytes.TrimSpace(value), []byte("null"))
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("The %s field is required.", field)
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", field, fe.Param())
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", field)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", field)
	case "eqfield":
		return fmt.Sprintf("The %s field confirmation does not match.", strings.ToLower(fe.Param()))
	case "due_date":
		return fmt.Sprintf("The %s field must be a valid date.", field)
	}
	return fmt.Sprintf("The %s field is invalid.", field)
}

type fieldErrors map[string][]string

func (f fieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}

// validationFailed writes a 422 with per-field messages.
func validationFailed(c *gin.Context, errs fieldErrors) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"message": invalidDataMessage,
		"errors":  errs,
	})
}

// handleBindError maps a binding failure to a 422. Validation errors are
// reported per field; malformed JSON gets a single message.
func handleBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		errs := fieldErrors{}
		for _, fe := range verrs {
			field := fe.Field()
			// confirmation mismatches are reported on the confirmed field
			if fe.Tag() == "eqfield" {
				field = strings.ToLower(fe.Param())
			}
			errs.add(field, fieldMessage(fe))
		}
		validationFailed(c, errs)
		return
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		validationFailed(c, fieldErrors{
			typeErr.Field: {fmt.Sprintf("The %s field must be a %s.", typeErr.Field, jsonTypeName(typeErr.Type))},
		})
		return
	}

	c.JSON(http.StatusUnprocessableEntity, gin.H{
		"message": "The request body must be valid JSON.",
	})
}

func jsonTypeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int64, reflect.Float64:
		return "number"
	}
	return t.Kind().String()
}
