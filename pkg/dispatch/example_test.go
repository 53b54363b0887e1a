package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vnykmshr/dispatch/pkg/dispatch"
)

func Example() {
	m, err := dispatch.New(dispatch.Config{
		Logger:        slog.New(slog.DiscardHandler),
		StatsSchedule: dispatch.StatsDisabled,
		Categories: []dispatch.Category{{
			Name:     "text",
			PoolSize: 2,
			Timeout:  time.Second,
			Handlers: dispatch.Handlers{
				"upper": func(_ context.Context, req dispatch.Request) (any, error) {
					return strings.ToUpper(req.Payload.(string)), nil
				},
			},
		}},
	})
	if err != nil {
		panic(err)
	}
	defer func() { <-m.Shutdown() }()

	result, err := m.Execute(context.Background(), "text", "upper", "hello")
	if err != nil {
		panic(err)
	}
	fmt.Println(result)

	// Output: HELLO
}

func ExampleRetryError() {
	m, _ := dispatch.New(dispatch.Config{
		Logger:        slog.New(slog.DiscardHandler),
		StatsSchedule: dispatch.StatsDisabled,
		Categories: []dispatch.Category{{
			Name:       "net",
			PoolSize:   1,
			MaxRetries: 2,
			Timeout:    20 * time.Millisecond,
			Handlers: dispatch.Handlers{
				"fetch": func(ctx context.Context, _ dispatch.Request) (any, error) {
					<-ctx.Done()
					return nil, ctx.Err()
				},
			},
		}},
	})
	defer func() { <-m.Shutdown() }()

	_, err := m.Execute(context.Background(), "net", "fetch", nil)
	fmt.Println(err)
	fmt.Println(errors.Is(err, dispatch.ErrTimeout))

	// Output:
	// task timed out after 2 retries
	// true
}

func ExampleManager_Stats() {
	m, _ := dispatch.New(dispatch.Config{
		Logger:        slog.New(slog.DiscardHandler),
		StatsSchedule: dispatch.StatsDisabled,
		Categories: []dispatch.Category{{
			Name:     "fileProcessor",
			PoolSize: 2,
			Handlers: dispatch.Handlers{
				"noop": func(context.Context, dispatch.Request) (any, error) { return nil, nil },
			},
		}},
	})
	defer func() { <-m.Shutdown() }()

	_ = m.Initialize(context.Background())
	for i := 0; i < 3; i++ {
		_, _ = m.Execute(context.Background(), "fileProcessor", "noop", nil)
	}

	st := m.Stats()["fileProcessor"]
	fmt.Printf("completed=%d workers=%d success=%.2f\n", st.TasksCompleted, st.TotalWorkers, st.SuccessRate)

	// Output: completed=3 workers=2 success=1.00
}
