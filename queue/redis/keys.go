package redis

// Redis key naming conventions for producer data.
// All keys are prefixed so several deployments can share a server.

// DefaultPrefix is the key prefix consumers expect by default.
const DefaultPrefix = "bq"

// jobsKey returns the Hash holding job envelopes by run ID: {prefix}:{queue}:jobs
func jobsKey(prefix, queue string) string { return prefix + ":" + queue + ":jobs" }

// waitingKey returns the List of run IDs awaiting a consumer: {prefix}:{queue}:waiting
func waitingKey(prefix, queue string) string { return prefix + ":" + queue + ":waiting" }
