package main

import (
	"os"
	"strings"

	"github.com/ordo-todo/ordo-core/internal/api"
	"github.com/ordo-todo/ordo-core/internal/config"
	"github.com/ordo-todo/ordo-core/internal/engine"
	"github.com/ordo-todo/ordo-core/internal/queue"
	"github.com/ordo-todo/ordo-core/internal/store"
)

// openCore opens the store and builds the queue and engine for one-shot CLI
// commands that run without the daemon. Callers must Close the store.
func openCore(cfg *config.Config) (*store.Store, *queue.Queue, *engine.Engine, error) {
	st, err := store.Open(cfg.DB.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	st.SetLogger(cfg.NewLogger("[store] "))

	q := queue.New(st.RawDB(), cfg.NewLogger("[queue] "))
	st.SetQueue(q)

	client := api.NewClient(cfg.API.BaseURL, cfg.API.MinServerVersion,
		cfg.API.Timeout, cfg.NewLogger("[api] "))
	if token := readToken(cfg); token != "" {
		client.SetToken(token)
	}

	eng, err := engine.New(st, q, client, nil, engine.Options{
		Interval:    cfg.Sync.Interval,
		BatchSize:   cfg.Sync.BatchSize,
		MaxAttempts: cfg.Sync.MaxAttempts,
		StartOnline: true,
	}, cfg.NewLogger("[sync] "))
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}
	return st, q, eng, nil
}

func readToken(cfg *config.Config) string {
	if cfg.Auth.TokenFile == "" {
		return ""
	}
	data, err := os.ReadFile(cfg.Auth.TokenFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
