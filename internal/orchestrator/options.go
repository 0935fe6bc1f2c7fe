package orchestrator

import (
	"time"

	"github.com/roundtable-games/roundtable/internal/config"
	"github.com/roundtable-games/roundtable/internal/orchestrator/completion"
	"github.com/roundtable-games/roundtable/internal/orchestrator/phase"
	"github.com/roundtable-games/roundtable/internal/orchestrator/quota"
)

// Timings bounds every phase and sub-session of a game.
type Timings struct {
	Statement          time.Duration
	Turn               time.Duration
	FreeDiscussion     time.Duration
	PrivateChat        time.Duration
	Answer             time.Duration
	PrivateChatSession time.Duration
	MonitorPoll        time.Duration
}

// PhaseDuration returns the timer length of p, or 0 for Ended.
func (t Timings) PhaseDuration(p phase.Phase) time.Duration {
	switch p {
	case phase.Statement:
		return t.Statement
	case phase.FreeDiscussion:
		return t.FreeDiscussion
	case phase.PrivateChat:
		return t.PrivateChat
	case phase.Answer:
		return t.Answer
	}
	return 0
}

// Options configure a Discussion.
type Options struct {
	Timings         Timings
	MaxPrivateChats int
	// InvitationPhases are the phases in which RequestPrivateChat is honoured.
	InvitationPhases []phase.Phase
	AllowSelfInvite  bool
}

// DefaultOptions mirrors the default configuration.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

// OptionsFromConfig converts the discussion section of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	d := &cfg.Discussion
	opts := Options{
		Timings: Timings{
			Statement:          d.StatementDuration(),
			Turn:               d.TurnDuration(),
			FreeDiscussion:     d.FreeDiscussionDuration(),
			PrivateChat:        d.PrivateChatDuration(),
			Answer:             d.AnswerDuration(),
			PrivateChatSession: d.PrivateChatSessionDuration(),
			MonitorPoll:        d.MonitorPollInterval(),
		},
		MaxPrivateChats: d.MaxPrivateChats,
		AllowSelfInvite: d.AllowSelfInvite,
	}
	for _, p := range d.InvitationPhases {
		opts.InvitationPhases = append(opts.InvitationPhases, phase.Phase(p))
	}
	return opts
}

func (o Options) withDefaults() Options {
	if o.MaxPrivateChats <= 0 {
		o.MaxPrivateChats = quota.MaxPrivateChats
	}
	if o.InvitationPhases == nil {
		o.InvitationPhases = []phase.Phase{phase.FreeDiscussion, phase.PrivateChat}
	}
	if o.Timings.MonitorPoll <= 0 {
		o.Timings.MonitorPoll = completion.DefaultPollInterval
	}
	return o
}
