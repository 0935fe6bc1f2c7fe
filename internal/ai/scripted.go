package ai

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/roundtable-games/roundtable/internal/orchestrator"
)

// ErrScriptedFailure is the error injected by a scripted provider's
// failure rate.
var ErrScriptedFailure = fmt.Errorf("scripted provider failure")

var scriptedLines = map[string][]string{
	"STATEMENT": {
		"I was in the library all evening, ask anyone.",
		"I heard raised voices near the study around nine.",
		"I only arrived after dinner, so I know very little.",
	},
	"FREE_DISCUSSION": {
		"Someone here is not telling the whole story.",
		"The timeline does not add up for me.",
		"I would like to hear more about the study.",
	},
	"PRIVATE_CHAT": {
		"Between us, I do not trust the last speaker.",
		"I saw something I did not want to say in front of everyone.",
		"Can we agree to compare notes before answering?",
	},
	"ANSWER": {
		"It was the gardener.",
		"It was the butler.",
		"I believe it was an accident.",
	},
}

// ScriptedOptions tune a Scripted provider.
type ScriptedOptions struct {
	// Seed makes replies reproducible; 0 picks a time-based seed.
	Seed uint64
	// FailureRate is the fraction of calls that fail, in [0, 1].
	FailureRate float64
	// Delay simulates provider latency.
	Delay time.Duration
	// InviteRate is the chance a decision names someone; 0 means always.
	InviteRate float64
}

// Scripted replies with canned lines. It is used by simulations and as a
// stand-in when no model is configured.
type Scripted struct {
	opts ScriptedOptions

	mu  sync.Mutex
	rng *rand.Rand
}

var _ orchestrator.ReasoningProvider = (*Scripted)(nil)

// NewScripted creates a scripted provider.
func NewScripted(opts ScriptedOptions) *Scripted {
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Scripted{opts: opts, rng: rand.New(rand.NewPCG(seed, seed>>1))}
}

// Generate returns a canned line for phase. Invitation decisions name one
// of the candidates listed in the hint.
func (s *Scripted) Generate(ctx context.Context, gameID, participantID, phase, hint string) (string, error) {
	if s.opts.Delay > 0 {
		t := time.NewTimer(s.opts.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.FailureRate > 0 && s.rng.Float64() < s.opts.FailureRate {
		return "", fmt.Errorf("%w: %s in %s", ErrScriptedFailure, participantID, phase)
	}

	if phase == orchestrator.DecisionPhase {
		candidates := hintCandidates(hint)
		if len(candidates) == 0 || (s.opts.InviteRate > 0 && s.rng.Float64() >= s.opts.InviteRate) {
			return orchestrator.NoInvitation, nil
		}
		return candidates[s.rng.IntN(len(candidates))], nil
	}

	lines, ok := scriptedLines[phase]
	if !ok {
		return "", nil
	}
	return lines[s.rng.IntN(len(lines))], nil
}

// hintCandidates extracts the bracketed, comma separated ids of a decision
// hint.
func hintCandidates(hint string) []string {
	start := strings.IndexByte(hint, '[')
	end := strings.LastIndexByte(hint, ']')
	if start < 0 || end <= start+1 {
		return nil
	}
	var out []string
	for _, part := range strings.Split(hint[start+1:end], ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}
