// Package daemon wires the Ordo core together: local store, sync queue,
// remote API client, sync engine and the WebSocket bridge.
//
// The daemon:
// 1. Opens the local store and attaches the sync queue
// 2. Serves UI requests over the bridge
// 3. Runs the engine's periodic background sync
// 4. Watches the auth token file so UI re-login reaches the engine
// 5. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ordo-todo/ordo-core/internal/api"
	"github.com/ordo-todo/ordo-core/internal/bridge"
	"github.com/ordo-todo/ordo-core/internal/config"
	"github.com/ordo-todo/ordo-core/internal/engine"
	"github.com/ordo-todo/ordo-core/internal/queue"
	"github.com/ordo-todo/ordo-core/internal/store"
)

// tokenDebounce batches rapid token-file rewrites together.
const tokenDebounce = 200 * time.Millisecond

// Daemon owns every long-lived component for one process.
type Daemon struct {
	cfg    *config.Config
	logger *log.Logger

	store  *store.Store
	queue  *queue.Queue
	client *api.Client
	engine *engine.Engine
	bridge *bridge.Server

	watcher *fsnotify.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the full component graph. Nothing runs until Start.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	logger := cfg.NewLogger("[daemon] ")

	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	st.SetLogger(cfg.NewLogger("[store] "))

	q := queue.New(st.RawDB(), cfg.NewLogger("[queue] "))
	st.SetQueue(q)

	client := api.NewClient(cfg.API.BaseURL, cfg.API.MinServerVersion,
		cfg.API.Timeout, cfg.NewLogger("[api] "))

	eng, err := engine.New(st, q, client, nil, engine.Options{
		Interval:    cfg.Sync.Interval,
		BatchSize:   cfg.Sync.BatchSize,
		MaxAttempts: cfg.Sync.MaxAttempts,
	}, cfg.NewLogger("[sync] "))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to build sync engine: %w", err)
	}

	br := bridge.NewServer(st, eng, &bridge.Config{
		Port:   cfg.Bridge.Port,
		Logger: cfg.NewLogger("[bridge] "),
	})

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		cfg:    cfg,
		logger: logger,
		store:  st,
		queue:  q,
		client: client,
		engine: eng,
		bridge: br,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Engine exposes the sync engine, used by CLI subcommands sharing a daemon.
func (d *Daemon) Engine() *engine.Engine { return d.engine }

// Store exposes the local store.
func (d *Daemon) Store() *store.Store { return d.store }

// Start brings everything up and blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Println("Starting daemon")

	// The bridge doubles as the engine's state publisher; wire it before
	// any sync can run.
	d.engine.SetPublisher(d.bridge)

	if err := d.bridge.Start(); err != nil {
		return err
	}

	d.loadToken()
	if err := d.watchTokenFile(); err != nil {
		d.logger.Printf("Token file watch disabled: %v", err)
	}

	d.engine.SetOnlineStatus(true)
	d.engine.StartAuto()

	select {
	case <-ctx.Done():
	case <-d.ctx.Done():
	}
	return d.Stop()
}

// Stop shuts down in reverse dependency order.
func (d *Daemon) Stop() error {
	d.logger.Println("Stopping daemon")
	d.cancel()

	d.engine.StopAuto()

	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	d.wg.Wait()

	if err := d.bridge.Stop(); err != nil {
		d.logger.Printf("Bridge stop error: %v", err)
	}
	if err := d.store.Close(); err != nil {
		d.logger.Printf("Store close error: %v", err)
	}

	d.logger.Println("Daemon stopped")
	return nil
}

// loadToken reads the token file, if present, into the engine.
func (d *Daemon) loadToken() {
	path := d.cfg.Auth.TokenFile
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			d.logger.Printf("Failed to read token file: %v", err)
		}
		return
	}
	token := strings.TrimSpace(string(data))
	if token != "" {
		d.engine.SetAuthToken(token)
		d.logger.Println("Auth token loaded")
	}
}

// watchTokenFile watches the token file's directory. Editors and the UI
// replace the file atomically, so events arrive as create/rename on the
// parent directory.
func (d *Daemon) watchTokenFile() error {
	path := d.cfg.Auth.TokenFile
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	d.watcher = watcher

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		d.watcher = nil
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		var timer *time.Timer
		for {
			select {
			case <-d.ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(tokenDebounce, func() {
					d.logger.Println("Token file changed, reloading")
					d.loadToken()
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Printf("Watcher error: %v", err)
			}
		}
	}()

	d.logger.Printf("Watching token file: %s", path)
	return nil
}
