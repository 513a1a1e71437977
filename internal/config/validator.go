package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/avivsinai/signalbox/internal/fsq"
)

// ValidationError represents a single invalid setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

func ValidLogLevels() []string  { return []string{"debug", "info", "warn", "error"} }
func ValidLogFormats() []string { return []string{"text", "json"} }
func ValidBackends() []string   { return []string{BackendMarker, BackendSQLite} }
func ValidOrders() []string     { return []string{OrderTimestamp, OrderDirectory} }

// Validate checks every field and returns all problems found. An empty client
// is allowed here; commands that touch a mailbox require one.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(c.Root) == "" {
		errs = append(errs, ValidationError{"root", c.Root, "must not be empty"})
	}
	if c.Client != "" {
		if err := fsq.ValidateClient(c.Client); err != nil {
			errs = append(errs, ValidationError{"client", c.Client, err.Error()})
		}
	}
	if strings.ContainsAny(c.Prefix, "\r\n") {
		errs = append(errs, ValidationError{"prefix", c.Prefix, "must be a single line"})
	}
	errs = appendOneOf(errs, "claims.backend", c.Claims.Backend, ValidBackends())
	if c.Enqueue.MaxCollisionRetries < 0 {
		errs = append(errs, ValidationError{"enqueue.max_collision_retries", c.Enqueue.MaxCollisionRetries, "must be >= 0"})
	}
	errs = appendOneOf(errs, "drain.order", c.Drain.Order, ValidOrders())
	errs = appendOneOf(errs, "logging.level", strings.ToLower(c.Logging.Level), ValidLogLevels())
	errs = appendOneOf(errs, "logging.format", strings.ToLower(c.Logging.Format), ValidLogFormats())
	if c.Watch.PollInterval <= 0 {
		errs = append(errs, ValidationError{"watch.poll_interval", c.Watch.PollInterval, "must be positive"})
	}
	return errs
}

func appendOneOf(errs []ValidationError, field, value string, valid []string) []ValidationError {
	if slices.Contains(valid, value) {
		return errs
	}
	return append(errs, ValidationError{
		Field:   field,
		Value:   value,
		Message: "must be one of " + strings.Join(valid, ", "),
	})
}
