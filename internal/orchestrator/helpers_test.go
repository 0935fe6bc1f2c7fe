package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/roundtable-games/roundtable/internal/event"
	"github.com/roundtable-games/roundtable/internal/orchestrator/dispatch"
	"github.com/roundtable-games/roundtable/internal/orchestrator/session"
)

type sinkMessage struct {
	sender     string
	receiver   string
	text       string
	recipients []string
}

// recordingSink keeps every message in delivery order.
type recordingSink struct {
	mu         sync.Mutex
	broadcasts []sinkMessage
	directs    []sinkMessage
}

func (s *recordingSink) Broadcast(_ string, text string, recipients []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcasts = append(s.broadcasts, sinkMessage{text: text, recipients: recipients})
}

func (s *recordingSink) SendDirect(_ string, sender, receiver, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.directs = append(s.directs, sinkMessage{sender: sender, receiver: receiver, text: text})
}

// broadcastTexts returns the broadcast texts containing substr.
func (s *recordingSink) broadcastTexts(substr string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.broadcasts {
		if strings.Contains(m.text, substr) {
			out = append(out, m.text)
		}
	}
	return out
}

// directsTo returns the direct messages received by receiver.
func (s *recordingSink) directsTo(receiver string) []sinkMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sinkMessage
	for _, m := range s.directs {
		if m.receiver == receiver {
			out = append(out, m)
		}
	}
	return out
}

// mockProvider answers by phase. Phases without a reply function return
// "<phase> from <participant>"; the decision phase declines by default.
type mockProvider struct {
	mu      sync.Mutex
	calls   map[string]int
	replies map[string]func(ctx context.Context, participantID string) (string, error)
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		calls:   make(map[string]int),
		replies: make(map[string]func(context.Context, string) (string, error)),
	}
}

func (p *mockProvider) on(phase string, fn func(ctx context.Context, participantID string) (string, error)) *mockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replies[phase] = fn
	return p
}

func (p *mockProvider) Generate(ctx context.Context, _ string, participantID, phase, _ string) (string, error) {
	p.mu.Lock()
	p.calls[phase]++
	fn := p.replies[phase]
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, participantID)
	}
	if phase == DecisionPhase {
		return NoInvitation, nil
	}
	return strings.ToLower(phase) + " from " + participantID, nil
}

func (p *mockProvider) callCount(phase string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[phase]
}

// longTimings keeps every timer far away so tests drive phases by hand.
func longTimings() Timings {
	return Timings{
		Statement:          time.Hour,
		Turn:               time.Hour,
		FreeDiscussion:     time.Hour,
		PrivateChat:        time.Hour,
		Answer:             time.Hour,
		PrivateChatSession: time.Hour,
		MonitorPoll:        10 * time.Millisecond,
	}
}

type testGame struct {
	d        *Discussion
	sink     *recordingSink
	provider *mockProvider
	bus      *event.Bus
}

func newTestGame(t *testing.T, ids []string, timings Timings, provider *mockProvider) *testGame {
	t.Helper()

	s, err := session.New("game-1", ids, "mod")
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	pool := dispatch.NewPool(dispatch.PoolConfig{Workers: 4}, dispatch.Callbacks{}, nil)
	t.Cleanup(pool.Close)

	sink := &recordingSink{}
	bus := event.NewBus(nil)
	d := NewDiscussion(s, pool, Deps{Provider: provider, Sink: sink, Bus: bus}, Options{Timings: timings})
	t.Cleanup(d.Close)

	return &testGame{d: d, sink: sink, provider: provider, bus: bus}
}

func (g *testGame) start(t *testing.T) {
	t.Helper()
	if err := g.d.StartSession(context.Background()); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
}

// waitFor polls cond until it holds or the timeout passes.
func waitFor(t *testing.T, what string, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
