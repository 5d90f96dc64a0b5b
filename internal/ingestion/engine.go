// Package ingestion implements the Ingestion Engine (C4): per-namespace
// FIFO queues with single-writer semantics, one lazily-spawned worker per
// observed namespace, driving tasks through the schema registry and graph
// store per spec.md §4.4.
package ingestion

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"kgraph/internal/domain"
	"kgraph/internal/graphstore"
	"kgraph/internal/schema"
)

// Task carries one episode through the worker loop. Immutable after
// Enqueue returns.
type Task struct {
	Episode   domain.Episode
	Schemas   map[string]schema.Schema
	Correlate string
}

// EnqueueResult is the synchronous acknowledgement returned to the caller;
// Position is the queue depth at enqueue time, including this task
// (supplemented from original_source/graphiti_mcp_server.py's {queued,
// position} acknowledgement).
type EnqueueResult struct {
	Queued   bool
	Position int
}

// Engine owns one queue and one worker goroutine per namespace, both
// created lazily on first observation and never torn down until shutdown.
type Engine struct {
	store   graphstore.Store
	logger  *zap.Logger
	queues  sync.Map // namespace string -> *ring
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an Engine driving episodes into store. The registry snapshot
// passed to Enqueue is resolved by the caller (internal/mcpserver), per
// spec.md §4.4 step 3: "always all currently registered schemas ... as of
// process startup".
func New(store graphstore.Store, logger *zap.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{store: store, logger: logger, ctx: ctx, cancel: cancel}
}

// Enqueue appends ep (with its schema snapshot) to its namespace's queue,
// lazily spawning that namespace's worker on first use. The sync.Map
// LoadOrStore is the compare-and-swap insertion that avoids the duplicate
// queue-creation race: if two callers race to be first for a namespace,
// exactly one ring/worker pair wins and the loser discovers and uses it.
func (e *Engine) Enqueue(ep domain.Episode, schemas map[string]schema.Schema, correlate string) EnqueueResult {
	q := e.queueFor(ep.Namespace)
	task := &Task{Episode: ep, Schemas: schemas, Correlate: correlate}
	depth := q.push(task)
	return EnqueueResult{Queued: true, Position: depth}
}

func (e *Engine) queueFor(namespace string) *ring {
	if existing, ok := e.queues.Load(namespace); ok {
		return existing.(*ring)
	}
	candidate := newRing()
	actual, loaded := e.queues.LoadOrStore(namespace, candidate)
	q := actual.(*ring)
	if !loaded {
		e.wg.Add(1)
		go e.runWorker(namespace, q)
	}
	return q
}

// runWorker drains namespace's queue single-threaded for process lifetime,
// implementing spec.md §4.4's worker loop steps 1-6.
func (e *Engine) runWorker(namespace string, q *ring) {
	defer e.wg.Done()
	logger := e.logger.With(zap.String("namespace", namespace))
	for {
		task, ok := q.pop()
		if !ok {
			return
		}
		e.process(logger, task)
	}
}

func (e *Engine) process(logger *zap.Logger, task *Task) {
	logger = logger.With(zap.String("episode_uuid", task.Episode.UUID), zap.String("correlation_id", task.Correlate))

	ep := task.Episode
	if ep.Format == domain.FormatJSON {
		var probe any
		if err := json.Unmarshal([]byte(ep.Body), &probe); err != nil {
			logger.Warn("episode body declared json but failed to parse; processing as text", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(e.ctx, 2*time.Minute)
	defer cancel()

	if err := e.store.AddEpisode(ctx, ep, task.Schemas); err != nil {
		logger.Error("episode processing failed; not requeued", zap.Error(err))
		return
	}

	if err := e.store.Rebuild(ctx, ep.Namespace); err != nil {
		logger.Warn("community/summary rebuild failed after episode; episode already persisted", zap.Error(err))
	}

	logger.Info("episode processed")
}

// Shutdown cancels in-flight processing contexts and closes every queue so
// workers exit once their current task (if any) finishes; queued-but-not-
// yet-started tasks are dropped, per spec.md's best-effort shutdown.
func (e *Engine) Shutdown() {
	e.queues.Range(func(_, v any) bool {
		v.(*ring).close()
		return true
	})
	e.cancel()
	e.wg.Wait()
}

// NamespaceCount returns the number of namespaces observed so far — equal
// to the number of live workers (spec.md §4.4 invariant).
func (e *Engine) NamespaceCount() int {
	n := 0
	e.queues.Range(func(_, _ any) bool { n++; return true })
	return n
}
