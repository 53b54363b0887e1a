/*
Package statsink stores dispatch statistics snapshots in Redis.

A RedisSink is a dispatch.StatsReporter. Every periodic snapshot is written
to one hash per category under <key>:<category>, so several processes or a
dashboard can read the latest numbers:

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	sink, _ := statsink.New(statsink.Config{
		Redis:      client,
		Key:        "vault:dispatch",
		InstanceID: hostname,
	})

	m, _ := dispatch.New(dispatch.Config{
		Categories: categories,
		Reporters:  []dispatch.StatsReporter{sink},
	})

	snap, _ := sink.Load(ctx, "fileProcessor")

Keys expire after KeyTTL so a stopped process leaves no stale numbers behind.
*/
package statsink
