// Package queue defines the producer side of the external job queues a
// response is dispatched to.
//
// Each allowed job name maps to one [Client]. AddJob returning nil means the
// queue durably accepted the run object; any error is retried by the
// dispatcher. Clients should treat RunObject.ID as an idempotency key so a
// retried add after an ambiguous failure never yields a second job.
//
// # Set
//
// [Set] is the name-keyed registry the dispatcher consults. A job name with
// no client in the set is unknown and is skipped.
//
//	set := queue.NewSet()
//	set.Add(redisqueue.New(client, cfg))
//
// # Limits
//
// [Limit] wraps a client with a token-bucket rate limit and a cap on
// concurrent in-flight adds (golang.org/x/time/rate):
//
//	set.Add(queue.Limit(client, queue.Config{Name: "email", RateLimit: 50, RateBurst: 100}))
//
// Backends live in subpackages: queue/redis for production and
// queue/memory for tests.
package queue
