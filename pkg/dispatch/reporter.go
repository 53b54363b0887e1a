package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// StatsReporter receives periodic statistics snapshots, keyed by category.
// Reporters run outside the scheduling loop; a slow reporter only causes
// snapshots to be skipped.
type StatsReporter interface {
	ReportStats(ctx context.Context, snapshot map[string]CategoryStats) error
}

// StatsReporterFunc adapts a function to StatsReporter.
type StatsReporterFunc func(ctx context.Context, snapshot map[string]CategoryStats) error

// ReportStats calls f.
func (f StatsReporterFunc) ReportStats(ctx context.Context, snapshot map[string]CategoryStats) error {
	return f(ctx, snapshot)
}

const reportTimeout = 5 * time.Second

// reportFanout hands snapshots to reporters on its own goroutine.
type reportFanout struct {
	reporters []StatsReporter
	ch        chan map[string]CategoryStats
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	log       *slog.Logger
}

func startReportFanout(reporters []StatsReporter, log *slog.Logger) *reportFanout {
	if len(reporters) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &reportFanout{
		reporters: reporters,
		ch:        make(chan map[string]CategoryStats, 1),
		cancel:    cancel,
		log:       log,
	}
	f.wg.Add(1)
	go f.run(ctx)
	return f
}

func (f *reportFanout) run(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-f.ch:
			for _, r := range f.reporters {
				rctx, cancel := context.WithTimeout(ctx, reportTimeout)
				if err := r.ReportStats(rctx, snap); err != nil {
					f.log.Warn("stats reporter failed", "error", err)
				}
				cancel()
			}
		}
	}
}

// offer never blocks; a snapshot is dropped while the previous one is pending.
func (f *reportFanout) offer(snap map[string]CategoryStats) {
	if f == nil {
		return
	}
	select {
	case f.ch <- snap:
	default:
		f.log.Debug("stats reporter busy, snapshot skipped")
	}
}

func (f *reportFanout) stop() {
	if f == nil {
		return
	}
	f.cancel()
	f.wg.Wait()
}
