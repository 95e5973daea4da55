// Package scheduler runs the periodic back-office jobs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/bursar/core"
)

const (
	sweepBatch   = 100
	sweepTimeout = 4 * time.Minute
)

// PendingRenderer renders receipts that have no PDF yet, one page of ids after afterID at a time.
type PendingRenderer interface {
	RenderPending(ctx context.Context, afterID, limit int) (rendered, lastID int, err error)
}

// ReceiptSweeper renders pending receipt PDFs on the configured cron schedule.
type ReceiptSweeper struct {
	schedule string
	renderer PendingRenderer
	logger   core.Logger
	cron     *cron.Cron

	mu    sync.Mutex
	swept int
}

func NewReceiptSweeper(conf *core.Config, renderer PendingRenderer, logger core.Logger) *ReceiptSweeper {
	clog := cronLogger{logger: logger}
	return &ReceiptSweeper{
		schedule: conf.Receipts.SweepSchedule,
		renderer: renderer,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog))),
	}
}

// Start schedules the sweep. An empty schedule disables it.
func (s *ReceiptSweeper) Start() error {
	if s.schedule == "" {
		s.logger.Info("receipt sweep disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return errors.Wrapf(err, "scheduling receipt sweep %q", s.schedule)
	}
	s.cron.Start()
	s.logger.Info("receipt sweep started", map[string]interface{}{"schedule": s.schedule})
	return nil
}

// Stop waits for a running sweep to finish or ctx to be done.
func (s *ReceiptSweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *ReceiptSweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	_, _ = s.Sweep(ctx)
}

// Sweep walks every pending receipt once, page by page in id order. Receipts that fail to render
// are passed over until the next sweep.
func (s *ReceiptSweeper) Sweep(ctx context.Context) (int, error) {
	var total, cursor int
	for {
		n, last, err := s.renderer.RenderPending(ctx, cursor, sweepBatch)
		total += n
		if err != nil {
			s.logger.Error("sweeping receipts", err)
			return total, err
		}
		if last <= cursor {
			break
		}
		cursor = last
	}

	s.mu.Lock()
	s.swept += total
	s.mu.Unlock()
	if total > 0 {
		s.logger.Info("receipts rendered", map[string]interface{}{"count": total})
	}
	return total, nil
}

// Swept returns how many receipts were rendered since start.
func (s *ReceiptSweeper) Swept() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swept
}

// cronLogger reports cron events through the app logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{err}, keysAndValues...)...)
}
