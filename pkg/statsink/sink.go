package statsink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	dserrors "github.com/vnykmshr/dispatch/pkg/common/errors"
	"github.com/vnykmshr/dispatch/pkg/common/validation"
	"github.com/vnykmshr/dispatch/pkg/dispatch"
)

const (
	// DefaultKey is the key prefix used when Config.Key is empty.
	DefaultKey = "dispatch:stats"
	// DefaultKeyTTL keeps a snapshot around for a few missed reports.
	DefaultKeyTTL = 5 * time.Minute
	// DefaultRedisTimeout bounds a single write or read.
	DefaultRedisTimeout = 2 * time.Second
)

// Config holds configuration for a RedisSink.
type Config struct {
	// Redis client used for storage
	Redis redis.UniversalClient

	// Key is the Redis key prefix. Each category is stored under <Key>:<category>.
	Key string

	// KeyTTL is the expiry set on every snapshot key
	KeyTTL time.Duration

	// RedisTimeout bounds each Redis round trip
	RedisTimeout time.Duration

	// InstanceID tags snapshots written by this process
	InstanceID string
}

// Snapshot is one stored category snapshot.
type Snapshot struct {
	Category              string
	InstanceID            string
	ReportedAt            time.Time
	TasksCompleted        int64
	TasksErrored          int64
	TasksTimedOut         int64
	Retries               int64
	Crashes               int64
	AverageProcessingTime time.Duration
	ActiveWorkers         int
	QueueLength           int
	TotalWorkers          int
	SuccessRate           float64
}

// RedisSink stores the latest statistics of every category in Redis hashes.
// It implements dispatch.StatsReporter.
type RedisSink struct {
	config Config
	owned  bool
}

var _ dispatch.StatsReporter = (*RedisSink)(nil)

// New creates a sink on an existing Redis client.
func New(config Config) (*RedisSink, error) {
	if config.Redis == nil {
		return nil, fmt.Errorf("statsink: redis client is required")
	}
	if config.Key == "" {
		config.Key = DefaultKey
	}
	if config.KeyTTL == 0 {
		config.KeyTTL = DefaultKeyTTL
	}
	if config.RedisTimeout == 0 {
		config.RedisTimeout = DefaultRedisTimeout
	}
	if err := validation.ValidatePositiveDuration("statsink", "key_ttl", config.KeyTTL); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration("statsink", "redis_timeout", config.RedisTimeout); err != nil {
		return nil, err
	}
	return &RedisSink{config: config}, nil
}

// NewFromURL connects to url and creates a sink that owns the connection.
func NewFromURL(url string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRedisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	sink, err := New(Config{Redis: client})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	sink.owned = true
	return sink, nil
}

func (s *RedisSink) categoryKey(category string) string {
	return s.config.Key + ":" + category
}

func (s *RedisSink) indexKey() string {
	return s.config.Key + ":categories"
}

// ReportStats writes one hash per category and records the category in the index set.
func (s *RedisSink) ReportStats(ctx context.Context, snapshot map[string]dispatch.CategoryStats) error {
	if len(snapshot) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.RedisTimeout)
	defer cancel()

	now := time.Now()
	pipe := s.config.Redis.TxPipeline()
	for category, st := range snapshot {
		key := s.categoryKey(category)
		pipe.HSet(ctx, key, map[string]interface{}{
			"instance_id":       s.config.InstanceID,
			"reported_at":       now.UnixMilli(),
			"tasks_completed":   st.TasksCompleted,
			"tasks_errored":     st.TasksErrored,
			"tasks_timed_out":   st.TasksTimedOut,
			"retries":           st.Retries,
			"crashes":           st.Crashes,
			"avg_processing_ms": st.AverageProcessingTime.Milliseconds(),
			"active_workers":    st.ActiveWorkers,
			"queue_length":      st.QueueLength,
			"total_workers":     st.TotalWorkers,
			"success_rate":      strconv.FormatFloat(st.SuccessRate, 'f', 4, 64),
		})
		pipe.Expire(ctx, key, s.config.KeyTTL)
		pipe.SAdd(ctx, s.indexKey(), category)
	}
	pipe.Expire(ctx, s.indexKey(), s.config.KeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return dserrors.NewOperationError("statsink", "ReportStats", err).WithContext(s.config.Key)
	}
	return nil
}

// Load returns the stored snapshot for category, or nil if none exists.
func (s *RedisSink) Load(ctx context.Context, category string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RedisTimeout)
	defer cancel()

	fields, err := s.config.Redis.HGetAll(ctx, s.categoryKey(category)).Result()
	if err != nil {
		return nil, dserrors.NewOperationError("statsink", "Load", err).WithContext(category)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	snap := &Snapshot{
		Category:              category,
		InstanceID:            fields["instance_id"],
		ReportedAt:            time.UnixMilli(parseInt(fields["reported_at"])),
		TasksCompleted:        parseInt(fields["tasks_completed"]),
		TasksErrored:          parseInt(fields["tasks_errored"]),
		TasksTimedOut:         parseInt(fields["tasks_timed_out"]),
		Retries:               parseInt(fields["retries"]),
		Crashes:               parseInt(fields["crashes"]),
		AverageProcessingTime: time.Duration(parseInt(fields["avg_processing_ms"])) * time.Millisecond,
		ActiveWorkers:         int(parseInt(fields["active_workers"])),
		QueueLength:           int(parseInt(fields["queue_length"])),
		TotalWorkers:          int(parseInt(fields["total_workers"])),
	}
	snap.SuccessRate, _ = strconv.ParseFloat(fields["success_rate"], 64)
	return snap, nil
}

// LoadAll returns every stored category snapshot keyed by category.
func (s *RedisSink) LoadAll(ctx context.Context) (map[string]*Snapshot, error) {
	categories, err := s.config.Redis.SMembers(ctx, s.indexKey()).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	out := make(map[string]*Snapshot, len(categories))
	for _, category := range categories {
		snap, err := s.Load(ctx, category)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			out[category] = snap
		}
	}
	return out, nil
}

// Close releases the Redis connection if the sink created it.
func (s *RedisSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.config.Redis.Close()
}

func parseInt(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
