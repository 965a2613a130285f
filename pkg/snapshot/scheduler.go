package snapshot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"matchbook/pkg/exchange/engine"
	"matchbook/pkg/router"
	"matchbook/pkg/util"
)

// Scheduler takes a snapshot every interval. It never reads engine state
// directly: each tick enqueues a TakeSnapshot request so the state copy
// happens on the sequential processing path, then writes the document from
// this goroutine, off the hot path.
//
// Write failures are logged and retried at the next interval; they are not
// fatal to request processing.
type Scheduler struct {
	bus      *router.Router
	writer   *Writer
	interval time.Duration
	clock    util.Clock
	log      *zap.Logger
}

func NewScheduler(bus *router.Router, writer *Writer, interval time.Duration, clock util.Clock, log *zap.Logger) *Scheduler {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{bus: bus, writer: writer, interval: interval, clock: clock, log: log}
}

// Run blocks until ctx is cancelled, so shutdown cannot leak a live timer.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(s.interval):
			s.snapshotOnce(ctx)
		}
	}
}

func (s *Scheduler) snapshotOnce(ctx context.Context) {
	start := s.clock.Now()

	reply, err := s.bus.Submit(ctx, engine.TakeSnapshot{})
	if err != nil {
		s.log.Warn("snapshot state copy failed, retrying next interval", zap.Error(err))
		return
	}
	taken, ok := reply.(engine.SnapshotTaken)
	if !ok {
		s.log.Error("unexpected snapshot reply", zap.Any("reply", reply))
		return
	}

	if err := s.writer.Write(taken.State); err != nil {
		s.log.Warn("snapshot write failed, retrying next interval",
			zap.String("path", s.writer.Path), zap.Error(err))
		return
	}

	s.log.Debug("snapshot installed",
		zap.String("path", s.writer.Path),
		zap.Int("markets", len(taken.State.Markets)),
		zap.Int("ledgerEntries", len(taken.State.Ledger)),
		zap.Duration("took", s.clock.Now().Sub(start)))
}
