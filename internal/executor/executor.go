// Package executor is the central, priority-driven scheduler: a fixed-size
// worker pool drains six priority tiers of submitted tasks (P1-P4, P6, P7),
// while a second, independently-capped pool pulls ready ops (the P5 tier)
// from the operation dependency graph and dispatches them through a Commander, persisting and
// archiving each op in the ledger as it goes.
package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tonimelisma/treesync/internal/events"
	"github.com/tonimelisma/treesync/internal/ledger"
	"github.com/tonimelisma/treesync/internal/opgraph"
	"github.com/tonimelisma/treesync/internal/planner"
)

// Config sizes the two worker pools.
type Config struct {
	MaxConcurrentUserOpTasks    int
	MaxConcurrentNonUserOpTasks int
}

func (c Config) normalized() Config {
	if c.MaxConcurrentUserOpTasks < 1 {
		c.MaxConcurrentUserOpTasks = 1
	}

	if c.MaxConcurrentNonUserOpTasks < 1 {
		c.MaxConcurrentNonUserOpTasks = 1
	}

	return c
}

type family struct {
	task            *Task
	selfDone        bool
	pendingChildren int
}

// Executor is the process-wide scheduler. One Executor per running daemon.
type Executor struct {
	cfg    Config
	graph  *opgraph.Graph
	ledger *ledger.Ledger
	cmd    Commander
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.Mutex
	cv       *sync.Cond // cv_has_task
	queues   map[Priority][]*Task
	families map[uint64]*family
	ids      taskIDSeq

	readyCh chan *Task

	pausedMu sync.RWMutex
	paused   bool

	cancel context.CancelFunc // cancels the context Start derived
	wg     sync.WaitGroup
}

// New constructs an Executor. graph and ledger must already be wired to the
// same tree-stores/op sources the Commander will act on.
func New(cfg Config, graph *opgraph.Graph, led *ledger.Ledger, cmd Commander, bus *events.Bus, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		cfg:      cfg.normalized(),
		graph:    graph,
		ledger:   led,
		cmd:      cmd,
		bus:      bus,
		logger:   logger,
		queues:   make(map[Priority][]*Task),
		families: make(map[uint64]*family),
		readyCh:  make(chan *Task),
	}
	e.cv = sync.NewCond(&e.mu)

	return e
}

// Submit enqueues task, and every task in task.Children (recursively), onto
// their priority tiers and wakes the dispatcher. IDs are assigned here;
// callers should not set task.ID or task.ParentID. Declaring children in
// the same Submit call that creates the parent means the parent's pending
// count is never observed as zero before all of its descendants exist.
func (e *Executor) Submit(task *Task) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.registerFamilyLocked(task, 0)
	e.cv.Broadcast()

	return task.ID
}

// registerFamilyLocked assigns IDs depth-first, enqueues every task in the
// family, and records each parent's pending-descendant count before any of
// them can possibly run (e.mu is held for the whole call).
func (e *Executor) registerFamilyLocked(task *Task, parentID uint64) {
	task.ID = e.ids.nextID()
	task.ParentID = parentID

	f := &family{task: task}
	e.families[task.ID] = f

	if parentID != 0 {
		if pf, ok := e.families[parentID]; ok {
			pf.pendingChildren++
		}
	}

	for _, child := range task.Children {
		e.registerFamilyLocked(child, task.ID)
	}

	e.queues[task.Priority] = append(e.queues[task.Priority], task)
}

// Start launches the dispatcher goroutine, the non-user-op worker pool, and
// the user-op (P5) dispatch pool. Start returns immediately; call Shutdown
// to stop everything.
func (e *Executor) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go e.runDispatcher(ctx)

	for range e.cfg.MaxConcurrentNonUserOpTasks {
		e.wg.Add(1)
		go e.runTaskWorker(ctx)
	}

	for range e.cfg.MaxConcurrentUserOpTasks {
		e.wg.Add(1)
		go e.runOpWorker(ctx)
	}
}

// Shutdown cancels the context Start derived from its argument, stops the
// scheduling loops, and waits for every worker goroutine to exit. Safe to
// call whether or not the caller has already canceled that argument.
func (e *Executor) Shutdown() {
	if e.cancel != nil {
		e.cancel()
	}

	e.mu.Lock()
	e.cv.Broadcast() // unstick any dispatcher waiting on cv_has_task
	e.mu.Unlock()

	e.graph.Shutdown()
	e.wg.Wait()
}

// Pause disables step 2 of the scheduling loop (op-graph dispatch) without
// affecting task queues.
func (e *Executor) Pause() {
	e.pausedMu.Lock()
	e.paused = true
	e.pausedMu.Unlock()

	if e.bus != nil {
		e.bus.Publish(events.OpExecutionPlayStateChanged, events.OpExecutionPlayStatePayload{Paused: true})
	}
}

// Resume re-enables op-graph dispatch.
func (e *Executor) Resume() {
	e.pausedMu.Lock()
	e.paused = false
	e.pausedMu.Unlock()

	if e.bus != nil {
		e.bus.Publish(events.OpExecutionPlayStateChanged, events.OpExecutionPlayStatePayload{Paused: false})
	}
}

func (e *Executor) isPaused() bool {
	e.pausedMu.RLock()
	defer e.pausedMu.RUnlock()

	return e.paused
}

// runDispatcher is the single controller goroutine implementing step 1 of
// the scheduling loop: drain P1..P4 in priority order; if none ready, drain
// P6..P7. Blocks on cv_has_task when every queue is empty.
func (e *Executor) runDispatcher(ctx context.Context) {
	defer e.wg.Done()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		e.cv.Broadcast()
		e.mu.Unlock()
	}()

	for {
		e.mu.Lock()

		task := e.popHighestPriorityLocked()
		for task == nil && ctx.Err() == nil {
			e.cv.Wait()
			task = e.popHighestPriorityLocked()
		}

		e.mu.Unlock()

		if task == nil {
			return // ctx canceled
		}

		select {
		case e.readyCh <- task:
		case <-ctx.Done():
			return
		}
	}
}

func (e *Executor) popHighestPriorityLocked() *Task {
	for _, p := range userPriorities {
		if t := popFrontLocked(e.queues, p); t != nil {
			return t
		}
	}

	for _, p := range backgroundPriorities {
		if t := popFrontLocked(e.queues, p); t != nil {
			return t
		}
	}

	return nil
}

func popFrontLocked(queues map[Priority][]*Task, p Priority) *Task {
	q := queues[p]
	if len(q) == 0 {
		return nil
	}

	queues[p] = q[1:]

	return q[0]
}

// runTaskWorker is one of the non-user-op pool's fixed workers.
func (e *Executor) runTaskWorker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-e.readyCh:
			if !ok {
				return
			}

			e.runTask(task)
		}
	}
}

func (e *Executor) runTask(task *Task) {
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("executor: panic in task", slog.Uint64("task_id", task.ID), slog.Any("panic", r))
			}
		}()

		err = task.Fn()
	}()

	if err != nil {
		e.logger.Error("executor: task failed", slog.Uint64("task_id", task.ID), slog.String("priority", task.Priority.String()), slog.String("error", err.Error()))
	}

	e.completeTask(task)
}

// completeTask marks task's family done, cascades completion up to its
// parent, and submits NextTask only once every descendant is also done.
func (e *Executor) completeTask(task *Task) {
	e.mu.Lock()

	var toSubmit *Task

	if f, ok := e.families[task.ID]; ok {
		f.selfDone = true

		if f.pendingChildren == 0 && task.NextTask != nil {
			toSubmit = task.NextTask
		}

		if f.pendingChildren == 0 {
			delete(e.families, task.ID)
		}
	}

	if task.ParentID != 0 {
		if pf, ok := e.families[task.ParentID]; ok {
			pf.pendingChildren--

			if pf.pendingChildren == 0 && pf.selfDone {
				if pf.task.NextTask != nil {
					toSubmit = pf.task.NextTask
				}

				delete(e.families, task.ParentID)
			}
		}
	}

	e.cv.Broadcast()
	e.mu.Unlock()

	if toSubmit != nil {
		e.Submit(toSubmit)
	}
}

// runOpWorker is one of the P5 user-op dispatch pool's fixed workers: loop
// asking the op graph for the next ready op (blocking), dispatch it through
// the Commander, then archive and pop it on success or skip, or mark it
// STOPPED_ON_ERROR in the ledger and leave it checked out in the graph on
// a fatal failure, which blocks the rest of its batch.
func (e *Executor) runOpWorker(ctx context.Context) {
	defer e.wg.Done()

	for {
		if e.isPaused() {
			if !sleepOrDone(ctx, pausedPollInterval) {
				return
			}

			continue
		}

		op, err := e.graph.GetNextOp(ctx)
		if err != nil {
			return
		}

		e.runOp(ctx, op)
	}
}

func (e *Executor) runOp(ctx context.Context, op *planner.Op) {
	err := runWithRetry(ctx, e.cmd, op)

	switch {
	case err == nil:
		if archErr := e.ledger.Archive(ctx, op.OpUID, false); archErr != nil {
			e.logger.Error("executor: archive op failed", slog.Uint64("op_uid", op.OpUID), slog.String("error", archErr.Error()))
		}

		e.graph.Pop(op)
	case classifyError(err) == classSkip:
		if archErr := e.ledger.Archive(ctx, op.OpUID, true); archErr != nil {
			e.logger.Error("executor: archive no-op failed", slog.Uint64("op_uid", op.OpUID), slog.String("error", archErr.Error()))
		}

		e.graph.Pop(op)
	default:
		e.logger.Error("executor: op failed, blocking batch", slog.Uint64("op_uid", op.OpUID), slog.String("batch_uid", op.BatchUID), slog.String("error", err.Error()))

		if markErr := e.ledger.MarkStoppedOnError(ctx, op.OpUID); markErr != nil {
			e.logger.Error("executor: mark stopped-on-error failed", slog.Uint64("op_uid", op.OpUID), slog.String("error", markErr.Error()))
		}

		if e.bus != nil {
			e.bus.Publish(events.BatchFailed, events.BatchFailedPayload{BatchUID: op.BatchUID, OpUID: op.OpUID, Reason: err.Error()})
		}
		// deliberately not popped: blocks the rest of this op's batch per spec.
	}
}
