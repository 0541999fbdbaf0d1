package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/merchflow/harvester/internal/checkpoint"
	"github.com/merchflow/harvester/internal/config"
	"github.com/merchflow/harvester/internal/fetch"
	"github.com/merchflow/harvester/internal/logger"
	"github.com/merchflow/harvester/internal/output"
	"github.com/merchflow/harvester/internal/store"
)

// slack delays each wake-up past the clock point so a point's work never
// starts a hair before its nominal time.
const slack = time.Minute

// Checkpoint keys shared across the pipeline.
const (
	unfinishedTaskKey = "unfinished_task"
	taskTimestampKey  = "task_timestamp"
	dayTimestampKey   = "last_timestamp"
)

// Pipeline is the harvest orchestrator.
type Pipeline struct {
	cfg     *config.Config
	flags   *checkpoint.Store
	fetcher *fetch.Scheduler
	writer  *output.Writer
	conn    store.Conn
	loader  *store.Loader
	clock   Clock
}

// New wires a pipeline from its collaborators.
func New(cfg *config.Config, flags *checkpoint.Store, fetcher *fetch.Scheduler, writer *output.Writer, conn store.Conn) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		flags:   flags,
		fetcher: fetcher,
		writer:  writer,
		conn:    conn,
		loader:  store.NewLoader(conn, flags, cfg.Paths.OutputDir, cfg.Location),
		clock:   NewClock(cfg.Location),
	}
}

// Run executes harvest cycles until ctx is canceled. A cycle left
// unfinished by a previous process runs immediately on startup; otherwise
// the pipeline sleeps until the next clock point.
func (p *Pipeline) Run(ctx context.Context) error {
	unfinished, err := p.flags.Has(checkpoint.Temporary, unfinishedTaskKey)
	if err != nil {
		return err
	}
	if unfinished {
		logger.Info(ctx, "Found unfinished task, finishing it now")
	} else {
		if err := p.sleepUntilNextPoint(ctx); err != nil {
			return err
		}
	}

	for {
		if err := p.runCycle(ctx); err != nil {
			return err
		}
		if err := p.sleepUntilNextPoint(ctx); err != nil {
			return err
		}
	}
}

func (p *Pipeline) sleepUntilNextPoint(ctx context.Context) error {
	now := p.clock.Now()
	delay := p.clock.NextPoint(now).Sub(now) + slack
	logger.Info(ctx, "Waiting until next point", "delay", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stage runs fn unless its flag is already set, and sets the flag after fn
// succeeds. The flag write is the commit point: a crash between fn and the
// write re-runs fn on resume.
func (p *Pipeline) stage(ctx context.Context, flag, skipMsg string, fn func() error) error {
	done, err := p.flags.Has(checkpoint.Temporary, flag)
	if err != nil {
		return err
	}
	if done {
		logger.Info(ctx, skipMsg)
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	return p.flags.Set(checkpoint.Temporary, flag)
}

func (p *Pipeline) cleanupOutputDir(ctx context.Context) error {
	entries, err := os.ReadDir(p.cfg.Paths.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to list output directory: %w", err)
	}
	for _, entry := range entries {
		if err := os.Remove(filepath.Join(p.cfg.Paths.OutputDir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove output file: %w", err)
		}
	}
	logger.Info(ctx, "Cleaned up output directory")
	return nil
}
