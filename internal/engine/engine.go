// Package engine is an in-process background job engine: a fixed pool of
// workers drains a queue of invocations, retrying failures with exponential
// backoff, and a cron scheduler fires recurring invocations by key.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrStopped = errors.New("engine is not running")

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobflow_engine_retries_total",
		Help: "Invocation retries scheduled after a failed attempt.",
	}, []string{"key"})

	exhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobflow_engine_exhausted_total",
		Help: "Invocations that failed on every attempt.",
	}, []string{"key"})

	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobflow_engine_in_flight",
		Help: "Invocations currently being attempted.",
	})
)

type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// BaseBackoff is the delay after the first failure; it doubles per
	// attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Location    *time.Location
}

func DefaultOptions() Options {
	return Options{
		Workers:     8,
		QueueSize:   256,
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
		Location:    time.Local,
	}
}

type invocation struct {
	key string
	run func(context.Context) error
}

type recurring struct {
	id   cron.EntryID
	expr string
}

// RecurringEntry describes a registered recurring invocation.
type RecurringEntry struct {
	Key     string    `json:"key"`
	Cron    string    `json:"cron"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run,omitempty"`
}

type Engine struct {
	opts   Options
	logger zerolog.Logger
	queue  chan invocation
	cron   *cron.Cron
	parser cron.Parser

	mu        sync.Mutex
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	recurring map[string]recurring
	wg        sync.WaitGroup
}

func New(opts Options, logger zerolog.Logger) *Engine {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = def.BaseBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}

	e := &Engine{
		opts:      opts,
		logger:    logger,
		queue:     make(chan invocation, opts.QueueSize),
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		recurring: make(map[string]recurring),
	}
	e.cron = cron.New(
		cron.WithLocation(opts.Location),
		cron.WithParser(e.parser),
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
	)
	return e
}

// Start launches the workers and the cron scheduler. They stop when ctx is
// cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true

	for i := 0; i < e.opts.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.cron.Start()
	e.logger.Info().Int("workers", e.opts.Workers).Int("max_attempts", e.opts.MaxAttempts).Msg("engine started")
}

// Run starts the engine and blocks until ctx is done, then stops it.
func (e *Engine) Run(ctx context.Context) error {
	e.Start(ctx)
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Stop(stopCtx)
}

// Stop cancels in-flight attempts and waits for workers and cron jobs to
// return, or for ctx to expire.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		<-e.cron.Stop().Done()
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.logger.Info().Msg("engine stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop engine: %w", ctx.Err())
	}
}

// Enqueue queues run for a worker. It fails with ErrStopped before Start
// or after Stop.
func (e *Engine) Enqueue(key string, run func(context.Context) error) error {
	e.mu.Lock()
	running, ctx := e.running, e.ctx
	e.mu.Unlock()
	if !running {
		return ErrStopped
	}
	select {
	case e.queue <- invocation{key: key, run: run}:
		return nil
	case <-ctx.Done():
		return ErrStopped
	}
}

// AddOrUpdateRecurring registers run under key, replacing any schedule
// already held by that key.
func (e *Engine) AddOrUpdateRecurring(key, cronExpr string, run func(context.Context) error) error {
	if _, err := e.parser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.recurring[key]; ok {
		e.cron.Remove(prev.id)
	}
	inv := invocation{key: key, run: run}
	id, err := e.cron.AddFunc(cronExpr, func() { e.fire(inv) })
	if err != nil {
		delete(e.recurring, key)
		return fmt.Errorf("add recurring %q: %w", key, err)
	}
	e.recurring[key] = recurring{id: id, expr: cronExpr}
	e.logger.Info().Str("key", key).Str("cron", cronExpr).Msg("recurring job registered")
	return nil
}

// RemoveRecurring drops the schedule held by key, if any.
func (e *Engine) RemoveRecurring(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev, ok := e.recurring[key]
	if ok {
		e.cron.Remove(prev.id)
		delete(e.recurring, key)
	}
	return ok
}

// Recurring lists registered recurring invocations.
func (e *Engine) Recurring() []RecurringEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]RecurringEntry, 0, len(e.recurring))
	for key, r := range e.recurring {
		entry := e.cron.Entry(r.id)
		out = append(out, RecurringEntry{Key: key, Cron: r.expr, NextRun: entry.Next, PrevRun: entry.Prev})
	}
	return out
}

// TriggerRecurring runs the invocation registered under key now, through
// the queue.
func (e *Engine) TriggerRecurring(key string) error {
	e.mu.Lock()
	r, ok := e.recurring[key]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("no recurring job %q", key)
	}
	entry := e.cron.Entry(r.id)
	if entry.Job == nil {
		return fmt.Errorf("no recurring job %q", key)
	}
	return e.Enqueue(key, func(context.Context) error {
		entry.Job.Run()
		return nil
	})
}

// fire runs a recurring invocation on the cron goroutine. The
// SkipIfStillRunning chain drops a tick while the previous one, retries
// included, is still going.
func (e *Engine) fire(inv invocation) {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	e.attempt(ctx, inv)
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case inv := <-e.queue:
			e.attempt(e.ctx, inv)
		}
	}
}

// attempt runs inv up to MaxAttempts times, sleeping between failures.
// Retries of one invocation are serialized on the calling goroutine.
func (e *Engine) attempt(ctx context.Context, inv invocation) {
	inFlight.Inc()
	defer inFlight.Dec()

	for n := 1; ; n++ {
		err := e.run(ctx, inv)
		if err == nil {
			return
		}
		if n >= e.opts.MaxAttempts || ctx.Err() != nil {
			exhaustedTotal.WithLabelValues(inv.key).Inc()
			e.logger.Error().Err(err).Str("key", inv.key).Int("attempts", n).Msg("invocation failed, giving up")
			return
		}
		delay := e.backoff(n)
		retriesTotal.WithLabelValues(inv.key).Inc()
		e.logger.Warn().Err(err).Str("key", inv.key).Int("attempt", n).Dur("retry_in", delay).Msg("invocation failed, retrying")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// run calls inv once. A panic becomes a failed attempt instead of taking
// the worker down.
func (e *Engine) run(ctx context.Context, inv invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("key", inv.key).Interface("panic", r).Str("stack", string(debug.Stack())).Msg("invocation panicked")
			err = fmt.Errorf("panic in %s: %v", inv.key, r)
		}
	}()
	return inv.run(ctx)
}

// backoff doubles from BaseBackoff per failed attempt, capped at
// MaxBackoff.
func (e *Engine) backoff(attempts int) time.Duration {
	if attempts <= 0 {
		return e.opts.BaseBackoff
	}
	if attempts > 30 {
		return e.opts.MaxBackoff
	}
	d := e.opts.BaseBackoff << (attempts - 1)
	if d > e.opts.MaxBackoff || d <= 0 {
		d = e.opts.MaxBackoff
	}
	return d
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
