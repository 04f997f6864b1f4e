// Package app wires configuration, logging, the store, telemetry, and
// the chat loop into runnable operations for the CLI.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"chatdb/pkg/banner"
	"chatdb/pkg/chat"
	"chatdb/pkg/client"
	"chatdb/pkg/config"
	"chatdb/pkg/keys"
	"chatdb/pkg/kv"
	"chatdb/pkg/telemetry"
)

// App owns the store handle and the transaction executor for one
// process run.
type App struct {
	cfg     *config.Config
	source  string
	version string

	db   *kv.DB
	exec *kv.Executor
}

// New opens the store and builds the executor from the effective
// config. Callers must Close the app when done.
func New(cfg *config.Config, source, version string) (*App, error) {
	_ = godotenv.Load(".env")

	db, err := kv.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %s: %w", cfg.Storage.DBPath, err)
	}
	policy := kv.RetryPolicy{
		MaxRetries: cfg.Txn.MaxRetries,
		Timeout:    time.Duration(cfg.Txn.TimeoutMS) * time.Millisecond,
	}
	return &App{
		cfg:     cfg,
		source:  source,
		version: version,
		db:      db,
		exec:    kv.NewExecutor(db, policy),
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.db.Close()
}

// RunChat joins room as user and drives the interactive loop on
// stdin/stdout until shutdown. When clearFirst is set the room subspace
// is wiped before the session is created.
func (a *App) RunChat(ctx context.Context, room, user string, clearFirst bool) error {
	telemetry.Serve(ctx, a.cfg.Telemetry.Addr)

	if clearFirst {
		if err := chat.NewAdmin(a.exec).ClearRoom(ctx, room); err != nil {
			return fmt.Errorf("clear room %q: %w", room, err)
		}
	}

	sess, err := chat.Join(ctx, a.db, a.exec, room, user)
	if err != nil {
		return err
	}

	banner.Print(room, user, a.cfg.Storage.DBPath, a.source, a.version)

	return client.Run(ctx, sess, os.Stdin, os.Stdout, client.Options{
		RateRPS:   a.cfg.Chat.RateRPS,
		RateBurst: a.cfg.Chat.RateBurst,
	})
}

// Reset wipes every key in the room's subspace.
func (a *App) Reset(ctx context.Context, room string) error {
	return chat.NewAdmin(a.exec).ClearRoom(ctx, room)
}

// History prints the room's message log to stdout, optionally starting
// strictly after the given timestamp.
func (a *App) History(ctx context.Context, room string, after time.Time) error {
	entries, err := chat.ReadRoom(ctx, a.exec, room, after)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("[%s] %s\n", keys.FormatTimestamp(e.Timestamp), e.Text)
	}
	return nil
}
