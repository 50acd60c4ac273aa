package commands

import (
	"context"
	"fmt"

	"github.com/benvon/voicenote-intake/internal/config"
	"github.com/benvon/voicenote-intake/internal/settings"
	"github.com/benvon/voicenote-intake/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Env is what a command operates on.
type Env struct {
	Config   *config.Config
	Settings settings.Store
	Storage  *storage.Store
	close    func() error
}

// Close releases the settings backend.
func (e *Env) Close() error {
	if e == nil || e.close == nil {
		return nil
	}
	return e.close()
}

// NewEnv assembles an Env from already-open parts. close may be nil.
func NewEnv(cfg *config.Config, s settings.Store, st *storage.Store, close func() error) *Env {
	return &Env{Config: cfg, Settings: s, Storage: st, close: close}
}

// Opener produces the Env for one command invocation.
type Opener func(ctx context.Context) (*Env, error)

// DefaultOpener loads configuration from the environment and connects to the configured
// settings backend, the same way the server does.
func DefaultOpener(ctx context.Context) (*Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	backend, err := settings.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open settings backend: %w", err)
	}
	return NewEnv(cfg, backend.Store, storage.NewOnDisk(cfg.UploadDir, cfg.PublicBaseURL), backend.Close), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t
}
