// Package validator turns ozzo-validation results into layered errors
// carrying per-field messages.
package validator

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/KOMKZ/go-yogan-guard/errcode"
)

// ErrValidation request or config failed validation; data["fields"] lists field messages
var ErrValidation = errcode.Register(errcode.New(errcode.ModuleCommon, 10,
	"common", "error.common.validation_failed", "validation failed", http.StatusBadRequest))

// Validatable anything with a Validate method
type Validatable = validation.Validatable

// ValidateRequest runs req.Validate and converts field errors.
// Errors that are not field errors are returned unchanged.
func ValidateRequest(req Validatable) error {
	err := req.Validate()
	if err == nil {
		return nil
	}
	if fields := Fields(err); len(fields) > 0 {
		return ErrValidation.WithData("fields", fields)
	}
	return err
}

// Fields flattens the first validation.Errors in err's chain into
// dotted paths, e.g. "rules[0].metric". Nil when err carries none.
func Fields(err error) map[string]string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string)
	flatten("", verrs, out)
	return out
}

func flatten(prefix string, verrs validation.Errors, out map[string]string) {
	for field, err := range verrs {
		if err == nil {
			continue
		}
		key := field
		if prefix != "" {
			key = prefix + "." + field
		}
		var nested validation.Errors
		if errors.As(err, &nested) {
			flatten(key, nested, out)
			continue
		}
		out[key] = err.Error()
	}
}
