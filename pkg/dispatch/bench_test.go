package dispatch

import (
	"context"
	"testing"
	"time"
)

func newBenchManager(b *testing.B, handler HandlerFunc) *Manager {
	b.Helper()
	m, err := New(Config{
		Logger:        testLogger(),
		StatsSchedule: StatsDisabled,
		Categories: []Category{{
			Name:     "bench",
			PoolSize: 4,
			Timeout:  time.Minute,
			Handlers: Handlers{"op": handler},
		}},
	})
	if err != nil {
		b.Fatal(err)
	}
	if err := m.Initialize(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { <-m.Shutdown() })
	return m
}

// BenchmarkSubmit measures the overhead of submission and dispatch.
func BenchmarkSubmit(b *testing.B) {
	m := newBenchManager(b, func(context.Context, Request) (any, error) {
		return nil, nil
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := m.Submit("bench", "op", nil).Result(); err != nil {
				b.Error(err)
			}
		}
	})
}

// BenchmarkSubmitWithWork measures throughput with a small amount of work per job.
func BenchmarkSubmitWithWork(b *testing.B) {
	m := newBenchManager(b, func(_ context.Context, req Request) (any, error) {
		sum := 0
		for i := 0; i < 1000; i++ {
			sum += i
		}
		return sum, nil
	})

	b.ResetTimer()
	futures := make([]*Future, b.N)
	for i := range futures {
		futures[i] = m.Submit("bench", "op", i)
	}
	for _, f := range futures {
		if _, err := f.Result(); err != nil {
			b.Error(err)
		}
	}
}

// BenchmarkQueue measures queue operations in isolation.
func BenchmarkQueue(b *testing.B) {
	q := &taskQueue{}
	j := &job{id: "j"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.pushBack(j)
		q.pushFront(j)
		q.popFront()
		q.popFront()
	}
}
