package config

import (
	"fmt"
)

// Validator implemented by every config section
type Validator interface {
	Validate() error
}

// ValidationError names the section that failed
type ValidationError struct {
	Section string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config [%s]: %v", e.Section, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateSections validates each named section, stopping at the first failure
func ValidateSections(sections map[string]Validator, order ...string) error {
	for _, name := range order {
		v, ok := sections[name]
		if !ok || v == nil {
			continue
		}
		if err := v.Validate(); err != nil {
			return &ValidationError{Section: name, Err: err}
		}
	}
	return nil
}
