package worker

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	"github.com/gogpu/stage/internal/logging"
	"github.com/gogpu/stage/telemetry"
)

// Default pool configuration.
const (
	DefaultMinWorkers    = 1
	DefaultTimeout       = 30 * time.Second
	DefaultIdleTimeout   = 30 * time.Second
	DefaultReapInterval  = 5 * time.Second
	DefaultShutdownGrace = 2 * time.Second
)

// Config configures a Pool. Zero fields take defaults.
type Config struct {
	// MinWorkers are kept alive even when idle. Defaults to 1.
	MinWorkers int

	// MaxWorkers bounds the pool. Defaults to GOMAXPROCS.
	MaxWorkers int

	// DefaultTimeout applies to tasks submitted without a timeout.
	DefaultTimeout time.Duration

	// IdleTimeout is how long a worker above MinWorkers may stay idle.
	IdleTimeout time.Duration

	// ReapInterval is the idle sweep period.
	ReapInterval time.Duration

	// ShutdownGrace is how long Terminate waits for in-flight tasks.
	ShutdownGrace time.Duration

	// Spawn starts a worker. Required.
	Spawn Spawner

	Hub    *telemetry.Hub
	Logger *slog.Logger
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers        int
	Busy           int
	Idle           int
	Queued         int
	Submitted      uint64
	Completed      uint64
	TaskErrors     uint64
	WorkerFailures uint64
	TimedOut       uint64
	Rejected       uint64
	Spawned        uint64
	Replaced       uint64
	Reaped         uint64
	Closed         bool
}

// BatchItem is one task of ExecuteBatch.
type BatchItem struct {
	Message  Message
	Priority int
	Timeout  time.Duration
}

// BatchResult is the outcome of one BatchItem.
type BatchResult struct {
	Response Response
	Err      error
}

type outcome struct {
	resp Response
	err  error
}

type task struct {
	id       string
	req      Request
	priority int
	timeout  time.Duration
	seq      uint64
	index    int
	worker   *workerState
	timer    *time.Timer
	done     chan outcome
}

type workerState struct {
	id       string
	conn     Conn
	task     *task
	idleFrom time.Time
	dead     bool
}

// Pool schedules tasks onto workers.
//
// Pool is safe for concurrent use.
type Pool struct {
	cfg Config
	log *slog.Logger

	mu       sync.Mutex
	queue    taskQueue
	workers  map[string]*workerState
	seq      uint64
	closed   bool
	stats    Stats
	outbox   []telemetry.Event
	inflight sync.WaitGroup

	stopReap chan struct{}
	reapDone chan struct{}
}

// New starts a pool with MinWorkers workers.
func New(cfg Config) (*Pool, error) {
	if cfg.Spawn == nil {
		return nil, errors.New("worker: Config.Spawn is required")
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.GOMAXPROCS(0)
	}
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = DefaultMinWorkers
	}
	cfg.MinWorkers = min(cfg.MinWorkers, cfg.MaxWorkers)
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}

	p := &Pool{
		cfg:      cfg,
		log:      logging.Component(cfg.Logger, "worker"),
		workers:  make(map[string]*workerState),
		stopReap: make(chan struct{}),
		reapDone: make(chan struct{}),
	}

	p.mu.Lock()
	for range cfg.MinWorkers {
		if _, err := p.spawnLocked(); err != nil {
			for _, w := range p.workers {
				w.dead = true
				w.conn.Kill()
			}
			p.mu.Unlock()
			return nil, fmt.Errorf("worker: spawn: %w", err)
		}
	}
	p.mu.Unlock()

	go p.reapLoop()
	return p, nil
}

// Execute submits msg and waits for its response. A timeout <= 0 uses
// DefaultTimeout. The error is a *TaskError when the worker reported a
// failure, and wraps ErrTimeout, ErrWorkerFailed or ErrTerminated when the
// task was rejected.
func (p *Pool) Execute(ctx context.Context, msg Message, priority int, timeout time.Duration) (Response, error) {
	t, err := p.submit(msg, priority, timeout)
	if err != nil {
		return Response{}, err
	}

	select {
	case o := <-t.done:
		return o.resp, o.err
	case <-ctx.Done():
		p.mu.Lock()
		if t.index >= 0 {
			heap.Remove(&p.queue, t.index)
			p.stats.Rejected++
		}
		p.mu.Unlock()
		return Response{}, ctx.Err()
	}
}

// ExecuteBatch runs every item concurrently and returns the results in
// item order. One failing item does not affect the others.
func (p *Pool) ExecuteBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Go(func() {
			resp, err := p.Execute(ctx, item.Message, item.Priority, item.Timeout)
			results[i] = BatchResult{Response: resp, Err: err}
		})
	}
	wg.Wait()
	return results
}

func (p *Pool) submit(msg Message, priority int, timeout time.Duration) (*task, error) {
	var data json.RawMessage
	if msg.Data != nil {
		b, err := json.Marshal(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("worker: encode %s data: %w", msg.Type, err)
		}
		data = b
	}
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}

	t := &task{
		id:       uuid.NewString(),
		priority: priority,
		timeout:  timeout,
		index:    -1,
		done:     make(chan outcome, 1),
	}
	t.req = Request{ID: t.id, Type: msg.Type, Data: data}

	p.mu.Lock()
	defer p.unlockAndFlush()
	if p.closed {
		p.stats.Rejected++
		return nil, ErrTerminated
	}
	p.seq++
	t.seq = p.seq
	p.stats.Submitted++
	heap.Push(&p.queue, t)
	p.dispatchLocked()
	return t, nil
}

// dispatchLocked binds queued tasks to idle workers, spawning up to
// MaxWorkers when none is idle.
func (p *Pool) dispatchLocked() {
	for len(p.queue) > 0 && !p.closed {
		w := p.idleLocked()
		if w == nil {
			if len(p.workers) >= p.cfg.MaxWorkers {
				return
			}
			var err error
			if w, err = p.spawnLocked(); err != nil {
				p.log.Error("spawn worker", slog.Any("error", err))
				if len(p.workers) == 0 {
					t := heap.Pop(&p.queue).(*task)
					p.rejectLocked(t, fmt.Errorf("%w: %w", ErrWorkerFailed, err))
					continue
				}
				return
			}
		}

		t := heap.Pop(&p.queue).(*task)
		p.bindLocked(w, t)
	}
}

func (p *Pool) idleLocked() *workerState {
	for _, w := range p.workers {
		if w.task == nil {
			return w
		}
	}
	return nil
}

func (p *Pool) spawnLocked() (*workerState, error) {
	conn, err := p.cfg.Spawn()
	if err != nil {
		return nil, err
	}
	w := &workerState{id: uuid.NewString(), conn: conn, idleFrom: time.Now()}
	p.workers[w.id] = w
	p.stats.Spawned++
	go p.watch(w)
	p.log.Debug("worker spawned", slog.String("worker", w.id), slog.Int("workers", len(p.workers)))
	return w, nil
}

func (p *Pool) bindLocked(w *workerState, t *task) {
	w.task = t
	t.worker = w
	p.inflight.Add(1)
	t.timer = time.AfterFunc(t.timeout, func() { p.onTimeout(w, t) })

	if err := w.conn.Send(t.req); err != nil {
		p.failLocked(w, fmt.Errorf("%w: send: %w", ErrWorkerFailed, err))
	}
}

// watch forwards responses from w until it exits.
func (p *Pool) watch(w *workerState) {
	for {
		select {
		case resp := <-w.conn.Responses():
			p.onResponse(w, resp)
		case <-w.conn.Done():
			p.mu.Lock()
			p.failLocked(w, fmt.Errorf("%w: %w", ErrWorkerFailed, w.conn.Err()))
			p.unlockAndFlush()
			return
		}
	}
}

func (p *Pool) onResponse(w *workerState, resp Response) {
	p.mu.Lock()
	defer p.unlockAndFlush()

	if w.dead {
		return
	}
	t := w.task
	if t == nil || resp.ID != t.id {
		p.failLocked(w, fmt.Errorf("%w: unexpected response %q", ErrWorkerFailed, resp.ID))
		return
	}

	t.timer.Stop()
	w.task = nil
	w.idleFrom = time.Now()
	p.inflight.Done()

	if resp.Error != "" && len(resp.Result) == 0 {
		p.stats.TaskErrors++
		t.done <- outcome{resp: resp, err: &TaskError{ID: t.id, Type: t.req.Type, Message: resp.Error}}
	} else {
		p.stats.Completed++
		t.done <- outcome{resp: resp}
	}
	p.dispatchLocked()
}

func (p *Pool) onTimeout(w *workerState, t *task) {
	p.mu.Lock()
	defer p.unlockAndFlush()

	if w.task != t || w.dead {
		return
	}
	p.stats.TimedOut++
	p.failLocked(w, fmt.Errorf("%w after %v", ErrTimeout, t.timeout))
}

// failLocked kills w, rejects its task with cause and replaces it.
func (p *Pool) failLocked(w *workerState, cause error) {
	if w.dead {
		return
	}
	w.dead = true
	delete(p.workers, w.id)
	w.conn.Kill()
	p.stats.WorkerFailures++

	if t := w.task; t != nil {
		w.task = nil
		t.timer.Stop()
		p.inflight.Done()
		p.rejectLocked(t, cause)
	}

	p.log.Warn("worker failed", slog.String("worker", w.id), slog.Any("error", cause))
	p.outbox = append(p.outbox, telemetry.Event{
		Kind:   telemetry.KindWorkerFailure,
		Time:   time.Now(),
		Source: "worker",
		Err:    cause,
	})

	if p.closed {
		return
	}
	for len(p.workers) < p.cfg.MinWorkers {
		if _, err := p.spawnLocked(); err != nil {
			p.log.Error("replace worker", slog.Any("error", err))
			break
		}
		p.stats.Replaced++
	}
	p.dispatchLocked()
}

func (p *Pool) rejectLocked(t *task, err error) {
	p.stats.Rejected++
	t.done <- outcome{err: err}
}

func (p *Pool) reapLoop() {
	defer close(p.reapDone)
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopReap:
			return
		case now := <-ticker.C:
			p.reap(now)
		}
	}
}

// reap stops workers idle for longer than IdleTimeout, keeping MinWorkers.
func (p *Pool) reap(now time.Time) int {
	p.mu.Lock()
	defer p.unlockAndFlush()

	n := 0
	for id, w := range p.workers {
		if len(p.workers) <= p.cfg.MinWorkers {
			break
		}
		if w.task != nil || now.Sub(w.idleFrom) < p.cfg.IdleTimeout {
			continue
		}
		w.dead = true
		delete(p.workers, id)
		w.conn.Kill()
		n++
	}
	if n > 0 {
		p.stats.Reaped += uint64(n)
		p.log.Debug("idle workers reaped", slog.Int("reaped", n), slog.Int("workers", len(p.workers)))
	}
	return n
}

// Terminate stops accepting tasks, rejects the queue, waits up to
// ShutdownGrace for in-flight tasks and then kills every worker.
// Tasks still running at that point are rejected with ErrTerminated.
func (p *Pool) Terminate() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for len(p.queue) > 0 {
		p.rejectLocked(heap.Pop(&p.queue).(*task), ErrTerminated)
	}
	p.unlockAndFlush()

	close(p.stopReap)
	<-p.reapDone

	drained := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(drained)
	}()
	timer := time.NewTimer(p.cfg.ShutdownGrace)
	select {
	case <-drained:
	case <-timer.C:
		p.log.Warn("shutdown grace expired, killing busy workers")
	}
	timer.Stop()

	p.mu.Lock()
	for id, w := range p.workers {
		w.dead = true
		delete(p.workers, id)
		w.conn.Kill()
		if t := w.task; t != nil {
			w.task = nil
			t.timer.Stop()
			p.inflight.Done()
			p.rejectLocked(t, ErrTerminated)
		}
	}
	p.unlockAndFlush()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.stats
	st.Workers = len(p.workers)
	for _, w := range p.workers {
		if w.task != nil {
			st.Busy++
		}
	}
	st.Idle = st.Workers - st.Busy
	st.Queued = len(p.queue)
	st.Closed = p.closed
	return st
}

// unlockAndFlush releases p.mu and publishes queued events outside it.
func (p *Pool) unlockAndFlush() {
	events := p.outbox
	p.outbox = nil
	p.mu.Unlock()

	for _, e := range events {
		p.cfg.Hub.Publish(e)
	}
}
