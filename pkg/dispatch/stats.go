package dispatch

import "time"

// CategoryStats is a point-in-time snapshot of one category.
type CategoryStats struct {
	TasksCompleted        int64
	TasksErrored          int64
	TasksTimedOut         int64
	Retries               int64
	Crashes               int64
	TotalProcessingTime   time.Duration
	AverageProcessingTime time.Duration
	ActiveWorkers         int
	QueueLength           int
	TotalWorkers          int
	// SuccessRate is completed / (completed + errored), or 0 before any
	// attempt has finished.
	SuccessRate float64
	Workers     []WorkerStats
}

// WorkerStats describes one worker handle.
type WorkerStats struct {
	ID             string
	Busy           bool
	CurrentJobID   string
	TasksProcessed int64
	Errors         int64
	CreatedAt      time.Time
	LastUsedAt     time.Time
}

// categoryStats accumulates counters for the lifetime of a dispatcher.
type categoryStats struct {
	created             time.Time
	tasksCompleted      int64
	tasksErrored        int64
	tasksTimedOut       int64
	retries             int64
	crashes             int64
	totalProcessingTime time.Duration
}

func (s *categoryStats) recordSuccess(d time.Duration) {
	s.tasksCompleted++
	s.totalProcessingTime += d
}

func (s *categoryStats) recordError() {
	s.tasksErrored++
}

func (s *categoryStats) averageProcessingTime() time.Duration {
	if s.tasksCompleted == 0 {
		return 0
	}
	return s.totalProcessingTime / time.Duration(s.tasksCompleted)
}

func successRate(completed, errored int64) float64 {
	total := completed + errored
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total)
}

func (s *categoryStats) snapshot(p *workerPool, q *taskQueue) CategoryStats {
	cs := CategoryStats{
		TasksCompleted:        s.tasksCompleted,
		TasksErrored:          s.tasksErrored,
		TasksTimedOut:         s.tasksTimedOut,
		Retries:               s.retries,
		Crashes:               s.crashes,
		TotalProcessingTime:   s.totalProcessingTime,
		AverageProcessingTime: s.averageProcessingTime(),
		SuccessRate:           successRate(s.tasksCompleted, s.tasksErrored),
	}
	if p != nil {
		cs.ActiveWorkers = p.active()
		cs.TotalWorkers = p.size()
		cs.Workers = make([]WorkerStats, 0, p.size())
		for _, h := range p.handles {
			cs.Workers = append(cs.Workers, h.stats())
		}
	}
	if q != nil {
		cs.QueueLength = q.len()
	}
	return cs
}
