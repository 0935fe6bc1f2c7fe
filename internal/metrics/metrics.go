// Package metrics exports prometheus metrics for discussion games.
//
// Game metrics are fed from the event bus; worker pool metrics from the
// pool's callbacks. Metrics register on the registerer given to New so tests
// can use a private registry.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roundtable-games/roundtable/internal/event"
	"github.com/roundtable-games/roundtable/internal/orchestrator/dispatch"
)

const namespace = "roundtable"

const (
	gameSubsystem = "game"
	poolSubsystem = "pool"
)

// Metrics holds every collector.
type Metrics struct {
	// SessionsActive counts started games not yet completed.
	SessionsActive prometheus.Gauge
	// SessionsCompleted counts finalized games.
	SessionsCompleted prometheus.Counter
	// SessionDuration observes game wall-clock time.
	SessionDuration prometheus.Histogram
	// PhaseTransitions counts applied transitions. Labels: phase
	PhaseTransitions *prometheus.CounterVec
	// Messages counts delivered utterances. Labels: phase, kind (table, private)
	Messages *prometheus.CounterVec
	// Invitations counts private chat requests. Labels: result (sent, rejected)
	Invitations *prometheus.CounterVec
	// Answers counts submitted answers.
	Answers prometheus.Counter
	// TaskFailures counts failed participant tasks. Labels: phase
	TaskFailures *prometheus.CounterVec
	// TimerExpirations counts fired timers. Labels: kind (phase, turn, private_chat)
	TimerExpirations *prometheus.CounterVec

	// QueueDepth is the pending task count at the last submission.
	QueueDepth prometheus.Gauge
	// TaskWait observes time spent queued.
	TaskWait prometheus.Histogram
	// TaskDuration observes task run time. Labels: task, status (ok, error)
	TaskDuration *prometheus.HistogramVec
	// TasksRejected counts submissions refused by the pool.
	TasksRejected prometheus.Counter
}

// New creates and registers every collector on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "sessions_active", Help: "Games started and not yet completed.",
		}),
		SessionsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "sessions_completed_total", Help: "Games finalized after the last answer phase.",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "session_duration_seconds", Help: "Wall-clock duration of completed games.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		PhaseTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "phase_transitions_total", Help: "Phase transitions by target phase.",
		}, []string{"phase"}),
		Messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "messages_total", Help: "Participant messages by phase and kind.",
		}, []string{"phase", "kind"}),
		Invitations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "invitations_total", Help: "Private chat invitations by result.",
		}, []string{"result"}),
		Answers: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "answers_total", Help: "Answers submitted.",
		}),
		TaskFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "task_failures_total", Help: "Participant tasks that failed, by phase.",
		}, []string{"phase"}),
		TimerExpirations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: gameSubsystem,
			Name: "timer_expirations_total", Help: "Expired timers by kind.",
		}, []string{"kind"}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: poolSubsystem,
			Name: "queue_depth", Help: "Pending tasks at the last submission.",
		}),
		TaskWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: poolSubsystem,
			Name: "task_wait_seconds", Help: "Time tasks spent queued.",
			Buckets: prometheus.DefBuckets,
		}),
		TaskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: poolSubsystem,
			Name: "task_duration_seconds", Help: "Task run time by task name and status.",
			Buckets: prometheus.ExponentialBuckets(0.01, 3, 10),
		}, []string{"task", "status"}),
		TasksRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: poolSubsystem,
			Name: "tasks_rejected_total", Help: "Tasks refused by a closed or full pool.",
		}),
	}
}

// Subscribe feeds game metrics from every event on bus and returns the
// subscription id.
func (m *Metrics) Subscribe(bus *event.Bus) string {
	return bus.SubscribeAll(m.Observe)
}

// Observe records one event.
func (m *Metrics) Observe(e event.Event) {
	switch ev := e.(type) {
	case event.SessionStartedEvent:
		m.SessionsActive.Inc()
	case event.SessionCompletedEvent:
		m.SessionsActive.Dec()
		m.SessionsCompleted.Inc()
		m.SessionDuration.Observe(ev.Duration.Seconds())
	case event.PhaseChangedEvent:
		m.PhaseTransitions.WithLabelValues(ev.To).Inc()
	case event.MessageSentEvent:
		kind := "table"
		if ev.Receiver != "" {
			kind = "private"
		}
		m.Messages.WithLabelValues(ev.Phase, kind).Inc()
	case event.InvitationSentEvent:
		m.Invitations.WithLabelValues("sent").Inc()
	case event.InvitationRejectedEvent:
		m.Invitations.WithLabelValues("rejected").Inc()
	case event.AnswerSubmittedEvent:
		m.Answers.Inc()
	case event.TaskFailedEvent:
		m.TaskFailures.WithLabelValues(ev.Phase).Inc()
	case event.TimerExpiredEvent:
		m.TimerExpirations.WithLabelValues(timerKind(ev.Scope)).Inc()
	}
}

// PoolCallbacks returns worker pool callbacks that feed pool metrics.
func (m *Metrics) PoolCallbacks() dispatch.Callbacks {
	return dispatch.Callbacks{
		OnQueued: func(_ dispatch.Task, depth int) {
			m.QueueDepth.Set(float64(depth))
		},
		OnStart: func(_ dispatch.Task, waited time.Duration) {
			m.TaskWait.Observe(waited.Seconds())
		},
		OnFinish: func(t dispatch.Task, err error, took time.Duration) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			m.TaskDuration.WithLabelValues(t.Name, status).Observe(took.Seconds())
		},
		OnReject: func(dispatch.Task, error) {
			m.TasksRejected.Inc()
		},
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func timerKind(scope string) string {
	switch {
	case strings.HasPrefix(scope, "TURN:"):
		return "turn"
	case strings.HasPrefix(scope, "PRIVATE_CHAT:"):
		return "private_chat"
	default:
		return "phase"
	}
}
