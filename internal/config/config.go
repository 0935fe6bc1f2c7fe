package config

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Phase names accepted in discussion.invitation_phases.
const (
	PhaseFreeDiscussion = "FREE_DISCUSSION"
	PhasePrivateChat    = "PRIVATE_CHAT"
)

// Config represents the complete roundtable configuration
type Config struct {
	Discussion DiscussionConfig `mapstructure:"discussion" yaml:"discussion"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch" yaml:"dispatch"`
	Provider   ProviderConfig   `mapstructure:"provider" yaml:"provider"`
	Transport  TransportConfig  `mapstructure:"transport" yaml:"transport"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	TUI        TUIConfig        `mapstructure:"tui" yaml:"tui"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// DiscussionConfig controls phase timing and private chat rules.
// All durations are in seconds.
type DiscussionConfig struct {
	StatementSeconds          int `mapstructure:"statement_seconds" yaml:"statement_seconds"`
	TurnSeconds               int `mapstructure:"turn_seconds" yaml:"turn_seconds"`
	FreeDiscussionSeconds     int `mapstructure:"free_discussion_seconds" yaml:"free_discussion_seconds"`
	PrivateChatSeconds        int `mapstructure:"private_chat_seconds" yaml:"private_chat_seconds"`
	AnswerSeconds             int `mapstructure:"answer_seconds" yaml:"answer_seconds"`
	PrivateChatSessionSeconds int `mapstructure:"private_chat_session_seconds" yaml:"private_chat_session_seconds"`
	// MaxPrivateChats is the per-round invitation allowance for each participant
	MaxPrivateChats int `mapstructure:"max_private_chats" yaml:"max_private_chats"`
	// InvitationPhases lists the phases in which invitations are honoured
	InvitationPhases []string `mapstructure:"invitation_phases" yaml:"invitation_phases"`
	AllowSelfInvite  bool     `mapstructure:"allow_self_invite" yaml:"allow_self_invite"`
	// MonitorPollSeconds is the heartbeat of the completion monitor
	MonitorPollSeconds int `mapstructure:"monitor_poll_seconds" yaml:"monitor_poll_seconds"`
	// TimeScale divides every phase duration; values above 1 speed games up
	TimeScale float64 `mapstructure:"time_scale" yaml:"time_scale"`
}

// DispatchConfig controls the shared worker pool
type DispatchConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
	// QueueLimit bounds the pending task queue; 0 means unbounded
	QueueLimit         int `mapstructure:"queue_limit" yaml:"queue_limit"`
	TaskTimeoutSeconds int `mapstructure:"task_timeout_seconds" yaml:"task_timeout_seconds"`
}

// ProviderConfig selects and tunes the reasoning provider
type ProviderConfig struct {
	// Backend is one of: scripted, openai
	Backend           string  `mapstructure:"backend" yaml:"backend"`
	Model             string  `mapstructure:"model" yaml:"model"`
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	APIKeyEnv         string  `mapstructure:"api_key_env" yaml:"api_key_env"`
	MaxTokens         int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature       float32 `mapstructure:"temperature" yaml:"temperature"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	// FailureRate makes the scripted backend fail a fraction of calls
	FailureRate float64 `mapstructure:"failure_rate" yaml:"failure_rate"`
}

// TransportConfig controls the websocket broadcast hub
type TransportConfig struct {
	// Listen is the address of the websocket server; empty disables it
	Listen              string `mapstructure:"listen" yaml:"listen"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	SendBuffer          int    `mapstructure:"send_buffer" yaml:"send_buffer"`
}

// MetricsConfig controls prometheus metrics exposure
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// TUIConfig controls the live session view
type TUIConfig struct {
	RefreshMs       int `mapstructure:"refresh_ms" yaml:"refresh_ms"`
	MaxMessageLines int `mapstructure:"max_message_lines" yaml:"max_message_lines"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is where roundtable.log is written; empty logs to stderr
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Discussion: DiscussionConfig{
			StatementSeconds:          300,
			TurnSeconds:               60,
			FreeDiscussionSeconds:     1800,
			PrivateChatSeconds:        1200,
			AnswerSeconds:             600,
			PrivateChatSessionSeconds: 180,
			MaxPrivateChats:           2,
			InvitationPhases:          []string{PhaseFreeDiscussion, PhasePrivateChat},
			AllowSelfInvite:           false,
			MonitorPollSeconds:        60,
			TimeScale:                 1,
		},
		Dispatch: DispatchConfig{
			Workers:            10,
			QueueLimit:         0,
			TaskTimeoutSeconds: 120,
		},
		Provider: ProviderConfig{
			Backend:           "scripted",
			Model:             "gpt-4o-mini",
			BaseURL:           "",
			APIKeyEnv:         "OPENAI_API_KEY",
			MaxTokens:         512,
			Temperature:       0.7,
			RequestsPerSecond: 5,
			Burst:             5,
			FailureRate:       0,
		},
		Transport: TransportConfig{
			Listen:              "",
			WriteTimeoutSeconds: 10,
			SendBuffer:          64,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		TUI: TUIConfig{
			RefreshMs:       250,
			MaxMessageLines: 200,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
	}
}

func (c *DiscussionConfig) scaled(seconds int) time.Duration {
	d := time.Duration(seconds) * time.Second
	if c.TimeScale > 0 && c.TimeScale != 1 {
		d = time.Duration(float64(d) / c.TimeScale)
	}
	return d
}

// StatementDuration returns the STATEMENT phase duration
func (c *DiscussionConfig) StatementDuration() time.Duration {
	return c.scaled(c.StatementSeconds)
}

// TurnDuration returns the per-speaker slot within STATEMENT
func (c *DiscussionConfig) TurnDuration() time.Duration {
	return c.scaled(c.TurnSeconds)
}

// FreeDiscussionDuration returns the FREE_DISCUSSION phase duration
func (c *DiscussionConfig) FreeDiscussionDuration() time.Duration {
	return c.scaled(c.FreeDiscussionSeconds)
}

// PrivateChatDuration returns the PRIVATE_CHAT phase duration
func (c *DiscussionConfig) PrivateChatDuration() time.Duration {
	return c.scaled(c.PrivateChatSeconds)
}

// AnswerDuration returns the ANSWER phase duration
func (c *DiscussionConfig) AnswerDuration() time.Duration {
	return c.scaled(c.AnswerSeconds)
}

// PrivateChatSessionDuration returns the lifetime of one accepted invitation
func (c *DiscussionConfig) PrivateChatSessionDuration() time.Duration {
	return c.scaled(c.PrivateChatSessionSeconds)
}

// MonitorPollInterval returns the completion monitor heartbeat
func (c *DiscussionConfig) MonitorPollInterval() time.Duration {
	return c.scaled(c.MonitorPollSeconds)
}

// InvitationOpenIn reports whether invitations are honoured in the named phase
func (c *DiscussionConfig) InvitationOpenIn(phase string) bool {
	return slices.Contains(c.InvitationPhases, phase)
}

// TaskTimeout returns the per-task deadline (0 means none)
func (c *DispatchConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// WriteTimeout returns the websocket write deadline
func (c *TransportConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Discussion defaults
	viper.SetDefault("discussion.statement_seconds", defaults.Discussion.StatementSeconds)
	viper.SetDefault("discussion.turn_seconds", defaults.Discussion.TurnSeconds)
	viper.SetDefault("discussion.free_discussion_seconds", defaults.Discussion.FreeDiscussionSeconds)
	viper.SetDefault("discussion.private_chat_seconds", defaults.Discussion.PrivateChatSeconds)
	viper.SetDefault("discussion.answer_seconds", defaults.Discussion.AnswerSeconds)
	viper.SetDefault("discussion.private_chat_session_seconds", defaults.Discussion.PrivateChatSessionSeconds)
	viper.SetDefault("discussion.max_private_chats", defaults.Discussion.MaxPrivateChats)
	viper.SetDefault("discussion.invitation_phases", defaults.Discussion.InvitationPhases)
	viper.SetDefault("discussion.allow_self_invite", defaults.Discussion.AllowSelfInvite)
	viper.SetDefault("discussion.monitor_poll_seconds", defaults.Discussion.MonitorPollSeconds)
	viper.SetDefault("discussion.time_scale", defaults.Discussion.TimeScale)

	// Dispatch defaults
	viper.SetDefault("dispatch.workers", defaults.Dispatch.Workers)
	viper.SetDefault("dispatch.queue_limit", defaults.Dispatch.QueueLimit)
	viper.SetDefault("dispatch.task_timeout_seconds", defaults.Dispatch.TaskTimeoutSeconds)

	// Provider defaults
	viper.SetDefault("provider.backend", defaults.Provider.Backend)
	viper.SetDefault("provider.model", defaults.Provider.Model)
	viper.SetDefault("provider.base_url", defaults.Provider.BaseURL)
	viper.SetDefault("provider.api_key_env", defaults.Provider.APIKeyEnv)
	viper.SetDefault("provider.max_tokens", defaults.Provider.MaxTokens)
	viper.SetDefault("provider.temperature", defaults.Provider.Temperature)
	viper.SetDefault("provider.requests_per_second", defaults.Provider.RequestsPerSecond)
	viper.SetDefault("provider.burst", defaults.Provider.Burst)
	viper.SetDefault("provider.failure_rate", defaults.Provider.FailureRate)

	// Transport defaults
	viper.SetDefault("transport.listen", defaults.Transport.Listen)
	viper.SetDefault("transport.write_timeout_seconds", defaults.Transport.WriteTimeoutSeconds)
	viper.SetDefault("transport.send_buffer", defaults.Transport.SendBuffer)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	viper.SetDefault("metrics.path", defaults.Metrics.Path)

	// TUI defaults
	viper.SetDefault("tui.refresh_ms", defaults.TUI.RefreshMs)
	viper.SetDefault("tui.max_message_lines", defaults.TUI.MaxMessageLines)

	// Logging defaults
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// Watch re-loads the configuration whenever the config file changes and hands
// every valid result to onChange. Invalid edits are reported through onError
// and the previous configuration stays in effect. Settings read once at game
// start (phase durations, worker count) only affect games created afterwards.
func Watch(onChange func(*Config), onError func(error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		if onChange != nil {
			onChange(cfg)
		}
	})
	viper.WatchConfig()
}

// Marshal renders cfg as YAML
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default configuration to path, creating parent
// directories. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	header := []byte("# roundtable configuration\n# Durations are in seconds. Environment overrides use ROUNDTABLE_<SECTION>_<KEY>.\n\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "roundtable")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".roundtable"
	}
	return filepath.Join(home, ".config", "roundtable")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of supported reasoning provider backends
func ValidBackends() []string {
	return []string{"scripted", "openai"}
}
