// Package dlq records dispatches that exhausted their delivery retries so
// an operator can inspect and replay them.
//
// The response itself stays unprocessed, so the next recovery scan would
// redispatch it anyway. An entry adds what the response record cannot: which
// jobs failed, the final error, and when. Replay redispatches the response
// on demand instead of waiting for a restart.
//
// # Entry
//
// An [Entry] captures:
//   - ID: a "dlq_" prefixed TypeID
//   - ResponseID / FormID: the response whose dispatch failed
//   - Jobs: the job names still failing after the last attempt
//   - Error: the final error message
//   - Attempts: the exhausted attempt budget
//   - FailedAt: when the dispatch gave up
//   - ReplayedAt: set when the entry is replayed (nil if not yet replayed)
//
// # Service
//
//	svc := dlq.NewService(store, redispatcher)
//	svc.Push(ctx, resp, []string{"email"}, 5, err)
//	svc.Replay(ctx, entryID)
//
// The [Extension] pushes entries automatically when registered with the
// engine.
package dlq
