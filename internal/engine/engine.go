// Package engine orchestrates bidirectional sync between the local store
// and the remote Ordo API: push drains the local mutation queue, pull
// fetches remote deltas, reconciliation merges them.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/ordo-todo/ordo-core/internal/api"
	"github.com/ordo-todo/ordo-core/internal/queue"
	"github.com/ordo-todo/ordo-core/internal/record"
	"github.com/ordo-todo/ordo-core/internal/store"
)

// Status is the engine's sync lifecycle state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// State is the externally visible engine snapshot, published to the bridge
// on every transition.
type State struct {
	Status           Status `json:"status"`
	LastSyncTime     int64  `json:"lastSyncTime,omitempty"`
	PendingChanges   int    `json:"pendingChanges"`
	FailedChanges    int    `json:"failedChanges"`
	IsOnline         bool   `json:"isOnline"`
	CurrentOperation string `json:"currentOperation,omitempty"`
	Error            string `json:"error,omitempty"`
}

// StatePublisher receives engine state snapshots. The bridge broadcasts
// them to connected UI clients.
type StatePublisher interface {
	PublishSyncState(State)
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	Interval    time.Duration // auto-sync period
	BatchSize   int           // queue entries per drain batch
	MaxAttempts int           // push attempts before an entry is parked as failed
	StartOnline bool          // begin in the online state (one-shot CLI use)
}

func (o *Options) fill() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
}

// Engine owns all sync state: auth token (held by the client), online flag,
// status and last-sync watermark. One instance per process.
type Engine struct {
	store     *store.Store
	queue     *queue.Queue
	client    *api.Client
	publisher StatePublisher
	logger    *log.Logger
	opts      Options

	mu        sync.Mutex
	status    Status
	online    bool
	lastSync  int64
	lastErr   string
	currentOp string

	autoMu   sync.Mutex
	autoStop chan struct{}
	autoWG   sync.WaitGroup
}

// New builds an engine and loads the last-sync watermark from store
// metadata. The publisher may be nil.
func New(st *store.Store, q *queue.Queue, client *api.Client, publisher StatePublisher, opts Options, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	opts.fill()

	e := &Engine{
		store:     st,
		queue:     q,
		client:    client,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		status:    StatusIdle,
		online:    opts.StartOnline,
	}

	raw, err := st.GetMeta(context.Background(), store.MetaLastSyncTime)
	if err != nil {
		return nil, fmt.Errorf("failed to load last sync time: %w", err)
	}
	if raw != "" {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stored last sync time %q: %w", raw, err)
		}
		e.lastSync = millis
	}
	return e, nil
}

// SetPublisher attaches a state publisher. The bridge is constructed after
// the engine, so this runs once during daemon wiring before any sync.
func (e *Engine) SetPublisher(p StatePublisher) {
	e.mu.Lock()
	e.publisher = p
	e.mu.Unlock()
}

// SetAuthToken stores the bearer token for subsequent remote calls.
// Clearing the token silently disables sync.
func (e *Engine) SetAuthToken(token string) {
	e.client.SetToken(token)
	e.publishState()
}

// SetOnlineStatus records connectivity. Coming back online with a token
// present kicks off an immediate background sync.
func (e *Engine) SetOnlineStatus(online bool) {
	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()
	e.publishState()

	if online && !wasOnline && e.client.HasToken() {
		e.logger.Printf("Back online, triggering sync")
		go func() {
			if err := e.Sync(context.Background()); err != nil {
				e.logger.Printf("Reconnect sync failed: %v", err)
			}
		}()
	}
}

// Sync runs one push+pull cycle. At most one instance runs at a time:
// re-entrant calls while syncing are logged and dropped. Calls without a
// token or while offline are silent no-ops.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if !e.online || !e.client.HasToken() {
		e.mu.Unlock()
		return nil
	}
	if e.status == StatusSyncing {
		e.mu.Unlock()
		e.logger.Printf("Sync already in progress, skipping")
		return nil
	}
	e.status = StatusSyncing
	e.lastErr = ""
	e.mu.Unlock()
	e.publishState()

	pulledAll, err := e.runCycle(ctx)

	e.mu.Lock()
	e.currentOp = ""
	if err != nil {
		e.status = StatusError
		e.lastErr = err.Error()
	} else {
		e.status = StatusIdle
		// The watermark only advances when every entity type pulled
		// cleanly; a skipped type's window must be re-pulled next cycle.
		if pulledAll {
			e.lastSync = record.NowMillis()
		}
	}
	lastSync := e.lastSync
	e.mu.Unlock()

	if err == nil && pulledAll {
		if merr := e.store.SetMeta(ctx, store.MetaLastSyncTime, strconv.FormatInt(lastSync, 10)); merr != nil {
			e.logger.Printf("Failed to persist last sync time: %v", merr)
		}
	}
	e.publishState()
	return err
}

// runCycle reports whether the pull phase covered every entity type.
func (e *Engine) runCycle(ctx context.Context) (bool, error) {
	if err := e.client.Health(ctx); err != nil {
		return false, fmt.Errorf("health check failed: %w", err)
	}

	e.setOperation("push")
	if err := e.push(ctx); err != nil {
		return false, fmt.Errorf("push failed: %w", err)
	}

	e.setOperation("pull")
	e.mu.Lock()
	since := e.lastSync
	e.mu.Unlock()
	return e.pull(ctx, since), nil
}

// push drains pending queue entries in FIFO batches, walking the queue by
// id cursor. A failing entry returns to pending behind the cursor, so each
// entry is attempted at most once per cycle and retried on the next one.
func (e *Engine) push(ctx context.Context) error {
	var after int64
	for {
		batch, err := e.queue.NextBatch(ctx, after, e.opts.BatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		for _, entry := range batch {
			after = entry.ID
			if err := e.queue.MarkProcessing(ctx, entry.ID); err != nil {
				return err
			}
			if err := e.pushEntry(ctx, entry); err != nil {
				parked, ferr := e.queue.Fail(ctx, entry.ID, err.Error(), e.opts.MaxAttempts)
				if ferr != nil {
					return ferr
				}
				if parked {
					e.logger.Printf("Entry %d (%s %s %s) exhausted retries: %v",
						entry.ID, entry.Operation, entry.EntityType, entry.EntityID, err)
				} else {
					e.logger.Printf("Entry %d (%s %s %s) failed, will retry: %v",
						entry.ID, entry.Operation, entry.EntityType, entry.EntityID, err)
				}
				continue
			}
			if err := e.queue.Complete(ctx, entry.ID); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) pushEntry(ctx context.Context, entry queue.Entry) error {
	et := entry.EntityType
	if !et.Valid() {
		return fmt.Errorf("unknown entity type %q", entry.EntityType)
	}

	// The payload snapshot's local_updated_at guards the synced flag:
	// edits made while this push is in flight keep the row pending.
	var snap struct {
		LocalUpdatedAt int64 `json:"local_updated_at"`
	}
	if len(entry.Payload) > 0 {
		if err := json.Unmarshal(entry.Payload, &snap); err != nil {
			return fmt.Errorf("corrupt payload: %w", err)
		}
	}

	switch entry.Operation {
	case record.OpCreate:
		serverUpdated, err := e.client.Create(ctx, et, entry.Payload)
		if err != nil {
			return err
		}
		return e.store.MarkSynced(ctx, et, entry.EntityID, serverUpdated, snap.LocalUpdatedAt)

	case record.OpUpdate:
		serverUpdated, err := e.client.Update(ctx, et, entry.EntityID, entry.Payload)
		if err != nil {
			return err
		}
		return e.store.MarkSynced(ctx, et, entry.EntityID, serverUpdated, snap.LocalUpdatedAt)

	case record.OpDelete:
		if err := e.client.Delete(ctx, et, entry.EntityID); err != nil {
			return err
		}
		return e.store.PurgeTombstone(ctx, et, entry.EntityID)

	default:
		return fmt.Errorf("unknown operation %q", entry.Operation)
	}
}

// pull fetches remote deltas per entity type and reconciles them. Failures
// are logged and swallowed per type so one bad collection does not block
// the rest; the return value reports whether every type pulled cleanly.
func (e *Engine) pull(ctx context.Context, since int64) bool {
	ok := true
	for _, et := range record.EntityTypes {
		recs, err := e.client.Pull(ctx, et, since)
		if err != nil {
			e.logger.Printf("Pull of %s failed: %v", et, err)
			ok = false
			continue
		}
		if len(recs) == 0 {
			continue
		}
		res, err := e.store.ReconcileBatch(ctx, et, recs)
		if err != nil {
			e.logger.Printf("Reconcile of %s failed: %v", et, err)
			ok = false
			continue
		}
		e.logger.Printf("Pulled %s: %d applied, %d conflicts, %d deleted",
			et, res.Applied, res.Conflicts, res.Deleted)
	}
	return ok
}

// Force triggers a sync immediately and returns the resulting state.
func (e *Engine) Force(ctx context.Context) State {
	if err := e.Sync(ctx); err != nil {
		e.logger.Printf("Forced sync failed: %v", err)
	}
	return e.State()
}

// State returns the current engine snapshot including live queue counts.
func (e *Engine) State() State {
	e.mu.Lock()
	s := State{
		Status:           e.status,
		LastSyncTime:     e.lastSync,
		IsOnline:         e.online,
		CurrentOperation: e.currentOp,
		Error:            e.lastErr,
	}
	e.mu.Unlock()

	stats, err := e.queue.Stats(context.Background())
	if err != nil {
		e.logger.Printf("Failed to read queue stats: %v", err)
		return s
	}
	s.PendingChanges = stats.Pending + stats.Processing
	s.FailedChanges = stats.Failed
	return s
}

// QueueStats exposes raw queue counters.
func (e *Engine) QueueStats(ctx context.Context) (queue.Stats, error) {
	return e.queue.Stats(ctx)
}

// ResetFailed re-arms failed queue entries for automatic retry.
func (e *Engine) ResetFailed(ctx context.Context) (int, error) {
	return e.queue.ResetFailed(ctx)
}

// StartAuto begins periodic background syncing. Idempotent.
func (e *Engine) StartAuto() {
	e.autoMu.Lock()
	defer e.autoMu.Unlock()
	if e.autoStop != nil {
		return
	}
	stop := make(chan struct{})
	e.autoStop = stop

	e.autoWG.Add(1)
	go func() {
		defer e.autoWG.Done()
		ticker := time.NewTicker(e.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := e.Sync(context.Background()); err != nil {
					e.logger.Printf("Auto sync failed: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
	e.logger.Printf("Auto sync started (every %s)", e.opts.Interval)
}

// StopAuto halts periodic syncing. Idempotent; a sync in flight runs to
// completion.
func (e *Engine) StopAuto() {
	e.autoMu.Lock()
	if e.autoStop == nil {
		e.autoMu.Unlock()
		return
	}
	close(e.autoStop)
	e.autoStop = nil
	e.autoMu.Unlock()

	e.autoWG.Wait()
	e.logger.Printf("Auto sync stopped")
}

func (e *Engine) setOperation(op string) {
	e.mu.Lock()
	e.currentOp = op
	e.mu.Unlock()
	e.publishState()
}

func (e *Engine) publishState() {
	e.mu.Lock()
	p := e.publisher
	e.mu.Unlock()
	if p == nil {
		return
	}
	p.PublishSyncState(e.State())
}
