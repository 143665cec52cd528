package cmd

import (
	"context"
	"errors"

	"github.com/Aman-CERP/kbank/internal/bank"
	"github.com/Aman-CERP/kbank/internal/config"
	"github.com/Aman-CERP/kbank/internal/embed"
	"github.com/Aman-CERP/kbank/internal/store"
)

// app is the open state behind a command: configuration, the store, the
// manager and one opened knowledge base.
type app struct {
	cfg     *config.Config
	store   *store.Store
	manager *bank.Manager
	bank    *bank.Bank
}

// loadConfig loads configuration for the flags in o.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configDir)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	return cfg, nil
}

// open opens the store and the knowledge base named by --kb.
func (o *rootOptions) open(ctx context.Context) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.OpenDir(cfg.DataDir, cfg.Store)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	m, err := bank.NewManager(cfg, st, embedder, o.logger)
	if err != nil {
		_ = embedder.Close()
		_ = st.Close()
		return nil, err
	}

	b, err := m.Open(ctx, o.kb)
	if err != nil {
		_ = m.Close()
		_ = st.Close()
		return nil, err
	}
	return &app{cfg: cfg, store: st, manager: m, bank: b}, nil
}

// Close releases the embedder and the store lock.
func (a *app) Close() error {
	return errors.Join(a.manager.Close(), a.store.Close())
}
