package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/Sentinel-Gate/Contractgate/internal/domain/usage"
)

// RegisterCustomValidators registers the gate's validation rules.
// Must be called before validating GateConfig.
func RegisterCustomValidators(v *validator.Validate) error {
	for tag, fn := range map[string]validator.Func{
		"audit_output":  validateAuditOutput,
		"usage_pattern": validateUsagePattern,
		"cron_schedule": validateCronSchedule,
		"duration":      validateDuration,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// validateAuditOutput accepts "stdout" or "file://<absolute-path>".
func validateAuditOutput(fl validator.FieldLevel) bool {
	output := fl.Field().String()
	if output == "stdout" {
		return true
	}
	if strings.HasPrefix(output, "file://") {
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	}
	return false
}

func validateUsagePattern(fl validator.FieldLevel) bool {
	_, err := usage.ParsePattern(fl.Field().String())
	return err == nil
}

func validateCronSchedule(fl validator.FieldLevel) bool {
	_, err := cron.ParseStandard(fl.Field().String())
	return err == nil
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// Validate validates the GateConfig using struct tags and cross-field rules.
func (c *GateConfig) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := RegisterCustomValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateGuardNames()
}

// validateStorage requires a database path for the sqlite driver.
func (c *GateConfig) validateStorage() error {
	if c.Storage.Driver == "sqlite" && c.Storage.SQLitePath == "" {
		return errors.New("storage: sqlite_path is required for the sqlite driver")
	}
	return nil
}

// validateGuardNames ensures guard names are unique.
func (c *GateConfig) validateGuardNames() error {
	seen := make(map[string]struct{}, len(c.UsageControl.Guards))
	for i, g := range c.UsageControl.Guards {
		if _, dup := seen[g.Name]; dup {
			return fmt.Errorf("usage_control.guards[%d]: duplicate guard name %q", i, g.Name)
		}
		seen[g.Name] = struct{}{}
	}
	return nil
}

// Patterns returns the configured enforced patterns. Empty means the
// service default.
func (c *GateConfig) Patterns() []usage.Pattern {
	out := make([]usage.Pattern, 0, len(c.UsageControl.EnforcedPatterns))
	for _, s := range c.UsageControl.EnforcedPatterns {
		if p, err := usage.ParsePattern(s); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "file":
		return fmt.Sprintf("%s must be an existing file", field)
	case "audit_output":
		return fmt.Sprintf("%s must be 'stdout' or 'file://<absolute-path>'", field)
	case "usage_pattern":
		return fmt.Sprintf("%s is not a known usage pattern: %v", field, e.Value())
	case "cron_schedule":
		return fmt.Sprintf("%s must be a cron expression or @every descriptor", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration such as \"5s\"", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
