package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Discussion.StatementSeconds != 300 {
		t.Errorf("Discussion.StatementSeconds = %d, want 300", cfg.Discussion.StatementSeconds)
	}
	if cfg.Discussion.FreeDiscussionSeconds != 1800 {
		t.Errorf("Discussion.FreeDiscussionSeconds = %d, want 1800", cfg.Discussion.FreeDiscussionSeconds)
	}
	if cfg.Discussion.PrivateChatSeconds != 1200 {
		t.Errorf("Discussion.PrivateChatSeconds = %d, want 1200", cfg.Discussion.PrivateChatSeconds)
	}
	if cfg.Discussion.AnswerSeconds != 600 {
		t.Errorf("Discussion.AnswerSeconds = %d, want 600", cfg.Discussion.AnswerSeconds)
	}
	if cfg.Discussion.PrivateChatSessionSeconds != 180 {
		t.Errorf("Discussion.PrivateChatSessionSeconds = %d, want 180", cfg.Discussion.PrivateChatSessionSeconds)
	}
	if cfg.Discussion.MaxPrivateChats != 2 {
		t.Errorf("Discussion.MaxPrivateChats = %d, want 2", cfg.Discussion.MaxPrivateChats)
	}
	if cfg.Discussion.AllowSelfInvite {
		t.Error("Discussion.AllowSelfInvite should be false by default")
	}
	if cfg.Dispatch.Workers != 10 {
		t.Errorf("Dispatch.Workers = %d, want 10", cfg.Dispatch.Workers)
	}
	if cfg.Dispatch.QueueLimit != 0 {
		t.Errorf("Dispatch.QueueLimit = %d, want 0 (unbounded)", cfg.Dispatch.QueueLimit)
	}
	if cfg.Provider.Backend != "scripted" {
		t.Errorf("Provider.Backend = %q, want %q", cfg.Provider.Backend, "scripted")
	}
	if cfg.Transport.Listen != "" {
		t.Errorf("Transport.Listen = %q, want empty", cfg.Transport.Listen)
	}
}

func TestDiscussionConfig_Durations(t *testing.T) {
	cfg := Default().Discussion

	if got := cfg.StatementDuration(); got != 5*time.Minute {
		t.Errorf("StatementDuration() = %v, want 5m", got)
	}
	if got := cfg.FreeDiscussionDuration(); got != 30*time.Minute {
		t.Errorf("FreeDiscussionDuration() = %v, want 30m", got)
	}
	if got := cfg.PrivateChatSessionDuration(); got != 3*time.Minute {
		t.Errorf("PrivateChatSessionDuration() = %v, want 3m", got)
	}

	cfg.TimeScale = 60
	if got := cfg.StatementDuration(); got != 5*time.Second {
		t.Errorf("scaled StatementDuration() = %v, want 5s", got)
	}
	if got := cfg.AnswerDuration(); got != 10*time.Second {
		t.Errorf("scaled AnswerDuration() = %v, want 10s", got)
	}
}

func TestDiscussionConfig_InvitationOpenIn(t *testing.T) {
	cfg := Default().Discussion

	tests := []struct {
		phase string
		want  bool
	}{
		{"FREE_DISCUSSION", true},
		{"PRIVATE_CHAT", true},
		{"STATEMENT", false},
		{"ANSWER", false},
	}
	for _, tt := range tests {
		t.Run(tt.phase, func(t *testing.T) {
			if got := cfg.InvitationOpenIn(tt.phase); got != tt.want {
				t.Errorf("InvitationOpenIn(%q) = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}

	cfg.InvitationPhases = []string{PhaseFreeDiscussion}
	if cfg.InvitationOpenIn(PhasePrivateChat) {
		t.Error("InvitationOpenIn(PRIVATE_CHAT) should be false when only FREE_DISCUSSION is listed")
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got, want := ConfigDir(), "/custom/config/roundtable"; got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		if got, want := ConfigDir(), filepath.Join(home, ".config", "roundtable"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := ConfigFile(), "/custom/config/roundtable/config.yaml"; got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestGet(t *testing.T) {
	SetDefaults()

	cfg := Get()
	if cfg == nil {
		t.Fatal("Get() returned nil")
	}
	if cfg.Discussion.MaxPrivateChats != 2 {
		t.Errorf("Get().Discussion.MaxPrivateChats = %d, want 2", cfg.Discussion.MaxPrivateChats)
	}
	if len(cfg.Discussion.InvitationPhases) != 2 {
		t.Errorf("Get().Discussion.InvitationPhases = %v, want 2 entries", cfg.Discussion.InvitationPhases)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "# roundtable configuration") {
		t.Errorf("config file missing header: %q", string(data[:40]))
	}

	var decoded Config
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if decoded.Dispatch.Workers != Default().Dispatch.Workers {
		t.Errorf("decoded Dispatch.Workers = %d, want %d", decoded.Dispatch.Workers, Default().Dispatch.Workers)
	}
	if errs := decoded.Validate(); len(errs) != 0 {
		t.Errorf("written default config should validate, got %v", errs)
	}

	if err := WriteDefault(path); !errors.Is(err, os.ErrExist) {
		t.Errorf("second WriteDefault() error = %v, want os.ErrExist", err)
	}
}
