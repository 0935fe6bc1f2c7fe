package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "dispatch.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateDiscussion()...)
	errors = append(errors, c.validateDispatch()...)
	errors = append(errors, c.validateProvider()...)
	errors = append(errors, c.validateTransport()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateTUI()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateDiscussion validates the DiscussionConfig
func (c *Config) validateDiscussion() []ValidationError {
	var errors []ValidationError

	positive := []struct {
		field string
		value int
	}{
		{"discussion.statement_seconds", c.Discussion.StatementSeconds},
		{"discussion.turn_seconds", c.Discussion.TurnSeconds},
		{"discussion.free_discussion_seconds", c.Discussion.FreeDiscussionSeconds},
		{"discussion.private_chat_seconds", c.Discussion.PrivateChatSeconds},
		{"discussion.answer_seconds", c.Discussion.AnswerSeconds},
		{"discussion.private_chat_session_seconds", c.Discussion.PrivateChatSessionSeconds},
		{"discussion.monitor_poll_seconds", c.Discussion.MonitorPollSeconds},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errors = append(errors, ValidationError{
				Field:   p.field,
				Value:   p.value,
				Message: "must be positive",
			})
		}
	}

	// The turn slot lives inside the statement phase
	if c.Discussion.TurnSeconds > c.Discussion.StatementSeconds && c.Discussion.StatementSeconds > 0 {
		errors = append(errors, ValidationError{
			Field:   "discussion.turn_seconds",
			Value:   c.Discussion.TurnSeconds,
			Message: "must not exceed discussion.statement_seconds",
		})
	}

	if c.Discussion.MaxPrivateChats < 0 {
		errors = append(errors, ValidationError{
			Field:   "discussion.max_private_chats",
			Value:   c.Discussion.MaxPrivateChats,
			Message: "must be non-negative",
		})
	}

	valid := []string{PhaseFreeDiscussion, PhasePrivateChat}
	for i, phase := range c.Discussion.InvitationPhases {
		if !slices.Contains(valid, phase) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("discussion.invitation_phases[%d]", i),
				Value:   phase,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(valid, ", ")),
			})
		}
	}

	if c.Discussion.TimeScale <= 0 {
		errors = append(errors, ValidationError{
			Field:   "discussion.time_scale",
			Value:   c.Discussion.TimeScale,
			Message: "must be positive",
		})
	}

	return errors
}

// validateDispatch validates the DispatchConfig
func (c *Config) validateDispatch() []ValidationError {
	var errors []ValidationError

	if c.Dispatch.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.workers",
			Value:   c.Dispatch.Workers,
			Message: "must be at least 1",
		})
	}

	const maxWorkers = 1024
	if c.Dispatch.Workers > maxWorkers {
		errors = append(errors, ValidationError{
			Field:   "dispatch.workers",
			Value:   c.Dispatch.Workers,
			Message: fmt.Sprintf("exceeds maximum of %d", maxWorkers),
		})
	}

	if c.Dispatch.QueueLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.queue_limit",
			Value:   c.Dispatch.QueueLimit,
			Message: "must be non-negative (0 = unbounded)",
		})
	}

	if c.Dispatch.TaskTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "dispatch.task_timeout_seconds",
			Value:   c.Dispatch.TaskTimeoutSeconds,
			Message: "must be non-negative (0 = no timeout)",
		})
	}

	return errors
}

// validateProvider validates the ProviderConfig
func (c *Config) validateProvider() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidBackends(), c.Provider.Backend) {
		errors = append(errors, ValidationError{
			Field:   "provider.backend",
			Value:   c.Provider.Backend,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidBackends(), ", ")),
		})
	}

	if c.Provider.Backend == "openai" && c.Provider.Model == "" {
		errors = append(errors, ValidationError{
			Field:   "provider.model",
			Value:   c.Provider.Model,
			Message: "is required for the openai backend",
		})
	}

	if c.Provider.MaxTokens < 0 {
		errors = append(errors, ValidationError{
			Field:   "provider.max_tokens",
			Value:   c.Provider.MaxTokens,
			Message: "must be non-negative",
		})
	}

	if c.Provider.Temperature < 0 || c.Provider.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "provider.temperature",
			Value:   c.Provider.Temperature,
			Message: "must be between 0 and 2",
		})
	}

	if c.Provider.RequestsPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "provider.requests_per_second",
			Value:   c.Provider.RequestsPerSecond,
			Message: "must be non-negative (0 = unlimited)",
		})
	}

	if c.Provider.RequestsPerSecond > 0 && c.Provider.Burst < 1 {
		errors = append(errors, ValidationError{
			Field:   "provider.burst",
			Value:   c.Provider.Burst,
			Message: "must be at least 1 when rate limiting is enabled",
		})
	}

	if c.Provider.FailureRate < 0 || c.Provider.FailureRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "provider.failure_rate",
			Value:   c.Provider.FailureRate,
			Message: "must be between 0 and 1",
		})
	}

	return errors
}

// validateTransport validates the TransportConfig
func (c *Config) validateTransport() []ValidationError {
	var errors []ValidationError

	if c.Transport.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Transport.Listen); err != nil {
			errors = append(errors, ValidationError{
				Field:   "transport.listen",
				Value:   c.Transport.Listen,
				Message: "must be a host:port address",
			})
		}
	}

	if c.Transport.WriteTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "transport.write_timeout_seconds",
			Value:   c.Transport.WriteTimeoutSeconds,
			Message: "must be positive",
		})
	}

	if c.Transport.SendBuffer < 1 {
		errors = append(errors, ValidationError{
			Field:   "transport.send_buffer",
			Value:   c.Transport.SendBuffer,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateMetrics validates the MetricsConfig
func (c *Config) validateMetrics() []ValidationError {
	var errors []ValidationError

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errors = append(errors, ValidationError{
			Field:   "metrics.path",
			Value:   c.Metrics.Path,
			Message: "must start with /",
		})
	}

	return errors
}

// validateTUI validates the TUIConfig
func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	if c.TUI.RefreshMs < 10 {
		errors = append(errors, ValidationError{
			Field:   "tui.refresh_ms",
			Value:   c.TUI.RefreshMs,
			Message: "must be at least 10",
		})
	}

	if c.TUI.MaxMessageLines < 1 {
		errors = append(errors, ValidationError{
			Field:   "tui.max_message_lines",
			Value:   c.TUI.MaxMessageLines,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
