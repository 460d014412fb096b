// Package middleware wraps every enqueue attempt the dispatcher makes.
//
// A [Middleware] sees the [job.RunObject] being handed to a queue and the
// [Handler] that performs the add call. The dispatcher composes its stack
// with [Chain]; the first entry is the outermost wrapper:
//
//	// recover → tracing → metrics → logging → timeout → queue add
//	stack := middleware.Chain(
//	    middleware.Recover(logger),
//	    middleware.Tracing(),
//	    middleware.Metrics(),
//	    middleware.Logging(logger),
//	    middleware.Timeout(enqueueTimeout, logger),
//	)
//
// # Built-in Middleware
//
//   - [Recover] turns a panicking queue client into a failed attempt
//   - [Tracing] opens a producer span per attempt
//   - [Metrics] records attempt counts and latency by job and outcome
//   - [Logging] logs each attempt at debug and failures at warn
//   - [Timeout] bounds a single add call by the job type's enqueue timeout
//
// The dispatch round is carried in the context ([WithAttempt], [Attempt])
// so spans and log lines can tell a first attempt from a retry.
//
// A middleware that does not call next fails the attempt with whatever it
// returns; the run stays pending for the next round.
package middleware
