// Package dispatch runs participant work on a bounded worker pool shared by
// every game in the process.
//
// Each unit of work is a [Task]. A task that returns an error or panics is
// logged, counted and reported through its OnDone hook; it never cancels its
// siblings, the pool or the phase that launched it.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roundtable-games/roundtable/internal/errors"
	"github.com/roundtable-games/roundtable/internal/logging"
)

const tracerName = "github.com/roundtable-games/roundtable/internal/orchestrator/dispatch"

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 10

// Task is one participant's work for one phase invocation.
type Task struct {
	GameID        string
	ParticipantID string
	Phase         string
	// Name identifies the kind of work, e.g. "statement" or "answer".
	Name       string
	PromptHint string
	// Run does the work. It should honour ctx cancellation.
	Run func(ctx context.Context) error
	// OnDone, if set, is called after Run returns with its error, which
	// includes a recovered panic wrapped as ErrTaskPanicked.
	OnDone func(err error)
}

// PoolConfig sizes the pool.
type PoolConfig struct {
	// Workers is the number of goroutines executing tasks.
	Workers int
	// QueueLimit bounds the number of pending tasks; 0 means unbounded.
	QueueLimit int
	// TaskTimeout bounds each task's context; 0 means no deadline.
	TaskTimeout time.Duration
}

// Callbacks observe pool activity. All fields are optional.
type Callbacks struct {
	OnQueued func(t Task, depth int)
	OnStart  func(t Task, waited time.Duration)
	OnFinish func(t Task, err error, took time.Duration)
	OnReject func(t Task, err error)
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers   int
	Queued    int
	Active    int
	Completed int64
	Failed    int64
}

type queuedTask struct {
	ctx      context.Context
	task     Task
	enqueued time.Time
}

// Pool is a fixed set of workers over a FIFO queue. Submission never blocks:
// when QueueLimit is set and reached, Submit rejects the task with
// ErrQueueFull instead.
type Pool struct {
	cfg       PoolConfig
	callbacks Callbacks
	logger    *logging.Logger
	tracer    trace.Tracer

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []queuedTask
	closed bool
	active int

	completed atomic.Int64
	failed    atomic.Int64

	workers conc.WaitGroup
}

// NewPool starts cfg.Workers workers.
func NewPool(cfg PoolConfig, callbacks Callbacks, logger *logging.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	p := &Pool{
		cfg:       cfg,
		callbacks: callbacks,
		logger:    logger.WithPhase("worker-pool"),
		tracer:    otel.Tracer(tracerName),
	}
	p.cond = sync.NewCond(&p.mu)

	for range cfg.Workers {
		p.workers.Go(p.work)
	}
	p.logger.Info("worker pool started", "workers", cfg.Workers, "queue_limit", cfg.QueueLimit)
	return p
}

// Submit enqueues t. It fails with ErrPoolClosed after Close and with
// ErrQueueFull when the bounded queue is at its limit.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if t.Run == nil {
		return errors.NewValidationError("task has no body").WithField("run")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		err := p.rejection(t, errors.ErrPoolClosed)
		p.reject(t, err)
		return err
	}
	if p.cfg.QueueLimit > 0 && len(p.queue) >= p.cfg.QueueLimit {
		p.mu.Unlock()
		err := p.rejection(t, errors.ErrQueueFull).WithRetryable(true)
		p.reject(t, err)
		return err
	}
	p.queue = append(p.queue, queuedTask{ctx: ctx, task: t, enqueued: time.Now()})
	depth := len(p.queue)
	p.cond.Signal()
	p.mu.Unlock()

	if p.callbacks.OnQueued != nil {
		p.callbacks.OnQueued(t, depth)
	}
	return nil
}

func (p *Pool) rejection(t Task, cause error) *errors.DispatchError {
	return errors.NewDispatchError("task rejected", cause).
		WithTaskName(t.Name).
		WithParticipant(t.ParticipantID).
		WithPhase(t.Phase)
}

func (p *Pool) reject(t Task, err error) {
	p.logger.Warn("task rejected",
		"game_id", t.GameID,
		"participant_id", t.ParticipantID,
		"task", t.Name,
		"error", err,
	)
	if p.callbacks.OnReject != nil {
		p.callbacks.OnReject(t, err)
	}
}

// Close stops accepting tasks, lets the workers drain the queue and waits
// for them to exit. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.workers.Wait()
	p.logger.Info("worker pool stopped",
		"completed", p.completed.Load(),
		"failed", p.failed.Load(),
	)
}

// Stats returns current queue depth, active workers and totals.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Workers:   p.cfg.Workers,
		Queued:    len(p.queue),
		Active:    p.active,
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

func (p *Pool) work() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		q := p.queue[0]
		p.queue[0] = queuedTask{}
		p.queue = p.queue[1:]
		p.active++
		p.mu.Unlock()

		p.execute(q)

		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

func (p *Pool) execute(q queuedTask) {
	t := q.task
	if p.callbacks.OnStart != nil {
		p.callbacks.OnStart(t, time.Since(q.enqueued))
	}

	ctx := q.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := p.tracer.Start(ctx, "dispatch."+t.Name,
		trace.WithAttributes(
			attribute.String("game.id", t.GameID),
			attribute.String("participant.id", t.ParticipantID),
			attribute.String("phase", t.Phase),
		),
	)
	defer span.End()

	var cancel context.CancelFunc = func() {}
	if p.cfg.TaskTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.cfg.TaskTimeout)
	}
	defer cancel()

	start := time.Now()
	err := p.run(ctx, t)
	took := time.Since(start)

	logger := p.logger.WithGame(t.GameID).WithParticipant(t.ParticipantID)
	if err != nil {
		p.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("task failed", "task", t.Name, "phase", t.Phase, "duration", took, "error", err)
	} else {
		p.completed.Add(1)
		logger.Debug("task completed", "task", t.Name, "phase", t.Phase, "duration", took)
	}

	if p.callbacks.OnFinish != nil {
		p.callbacks.OnFinish(t, err, took)
	}
	if t.OnDone != nil {
		var pc panics.Catcher
		pc.Try(func() { t.OnDone(err) })
		if rec := pc.Recovered(); rec != nil {
			logger.Error("task completion hook panicked", "task", t.Name, "panic", fmt.Sprint(rec.Value))
		}
	}
}

// run executes the task body, converting a panic or an error into a
// DispatchError. A context that ended before the task started is reported
// as ErrCanceled without running the body.
func (p *Pool) run(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return errors.NewDispatchError("task skipped", fmt.Errorf("%w: %w", errors.ErrCanceled, err)).
			WithTaskName(t.Name).WithParticipant(t.ParticipantID).WithPhase(t.Phase).
			WithSeverity(errors.SeverityInfo)
	}

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = t.Run(ctx) })
	if rec := pc.Recovered(); rec != nil {
		p.logger.Error("task panicked",
			"game_id", t.GameID,
			"participant_id", t.ParticipantID,
			"task", t.Name,
			"panic", fmt.Sprint(rec.Value),
			"stack", string(rec.Stack),
		)
		return errors.NewDispatchError(fmt.Sprintf("panic: %v", rec.Value), errors.ErrTaskPanicked).
			WithTaskName(t.Name).WithParticipant(t.ParticipantID).WithPhase(t.Phase)
	}
	if err != nil {
		if p.cfg.TaskTimeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			err = errors.NewTimeoutError(t.Name, p.cfg.TaskTimeout).WithCause(err)
		}
		severity := errors.GetSeverity(err)
		if errors.Is(err, context.Canceled) {
			severity = errors.SeverityInfo
		}
		return errors.NewDispatchError("execution failed", fmt.Errorf("%w: %w", errors.ErrTaskFailed, err)).
			WithTaskName(t.Name).WithParticipant(t.ParticipantID).WithPhase(t.Phase).
			WithRetryable(errors.IsRetryable(err)).WithSeverity(severity)
	}
	return nil
}
