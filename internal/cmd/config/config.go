// Package config provides CLI commands for managing roundtable configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	appconfig "github.com/roundtable-games/roundtable/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify roundtable configuration",
	Long: `View or modify roundtable configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  roundtable config set discussion.max_private_chats 3
  roundtable config set provider.backend openai
  roundtable config set discussion.time_scale 60

Valid keys:
  discussion.statement_seconds       - STATEMENT phase length
  discussion.turn_seconds            - Per-speaker slot within STATEMENT
  discussion.free_discussion_seconds - FREE_DISCUSSION phase length
  discussion.private_chat_seconds    - PRIVATE_CHAT phase length
  discussion.answer_seconds          - ANSWER phase length
  discussion.max_private_chats       - Invitations per participant per round
  discussion.allow_self_invite       - Accept invitations to oneself (true/false)
  discussion.time_scale              - Divide every duration by this factor
  dispatch.workers                   - Worker goroutines shared by all games
  dispatch.queue_limit               - Pending task bound (0 = unbounded)
  provider.backend                   - Reasoning backend (scripted/openai)
  provider.model                     - Model name for the openai backend
  provider.requests_per_second       - Provider rate limit (0 = none)
  transport.listen                   - Websocket and metrics address
  logging.level                      - debug, info, warn or error`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/roundtable/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

// Register adds all config-related commands to the given parent command.
func Register(parent *cobra.Command) {
	parent.AddCommand(configCmd)
}

// settableKeys maps each key accepted by `config set` to its value kind.
var settableKeys = map[string]string{
	"discussion.statement_seconds":       "int",
	"discussion.turn_seconds":            "int",
	"discussion.free_discussion_seconds": "int",
	"discussion.private_chat_seconds":    "int",
	"discussion.answer_seconds":          "int",
	"discussion.max_private_chats":       "int",
	"discussion.allow_self_invite":       "bool",
	"discussion.time_scale":              "float",
	"dispatch.workers":                   "int",
	"dispatch.queue_limit":               "int",
	"provider.backend":                   "backend",
	"provider.model":                     "string",
	"provider.requests_per_second":       "float",
	"transport.listen":                   "string",
	"logging.level":                      "level",
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	data, err := appconfig.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}
	_, err = out.Write(data)
	return err
}

// parseValue checks value against the kind of key and converts it.
func parseValue(key, value string) (any, error) {
	kind, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'roundtable config set --help' to see valid keys", key)
	}

	switch kind {
	case "backend":
		if !slices.Contains(appconfig.ValidBackends(), value) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(appconfig.ValidBackends(), ", "))
		}
		return value, nil
	case "level":
		v := strings.ToLower(value)
		if !slices.Contains(appconfig.ValidLogLevels(), v) {
			return nil, fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(appconfig.ValidLogLevels(), ", "))
		}
		return v, nil
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		return value == "true", nil
	case "int":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return n, nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected number", key)
		}
		if f < 0 {
			return nil, fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		return f, nil
	}
	return value, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	typed, err := parseValue(key, value)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(appconfig.ConfigDir(), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typed)
	if _, err := appconfig.Load(); err != nil {
		return fmt.Errorf("value rejected: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = appconfig.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typed)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := appconfig.ConfigFile()

	if err := appconfig.WriteDefault(configFile); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("config file already exists at %s\nUse 'roundtable config set' to modify values", configFile)
		}
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created config file at %s\n", configFile)
	fmt.Fprintln(out, "Edit this file to customize phase timings and the reasoning provider.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", appconfig.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", appconfig.ConfigFile())
	fmt.Fprintln(out, "  2. $HOME/.config/roundtable/config.yaml")
	fmt.Fprintln(out, "  3. ./config.yaml (current directory)")
	fmt.Fprintln(out, "\nEnvironment variables: ROUNDTABLE_* (e.g., ROUNDTABLE_DISCUSSION_MAX_PRIVATE_CHATS)")
	return nil
}
