package custom_errors

import (
	"errors"
	"fmt"
)

// ValidationError collects every rule a request or configuration broke, so
// callers see all problems at once instead of the first one.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	if err != nil {
		c.Errors = append(c.Errors, err)
	}
}

func (c *ValidationError) Addf(format string, args ...any) {
	c.Errors = append(c.Errors, fmt.Errorf(format, args...))
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

// Err returns c when at least one rule failed and nil otherwise.
func (c *ValidationError) Err() error {
	if c.HasError() {
		return c
	}
	return nil
}

func (c *ValidationError) Unwrap() []error {
	return c.Errors
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("validation failed: %v", errors.Join(c.Errors...))
}
