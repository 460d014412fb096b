// Package engine wires the formdispatch subsystems together: identity
// allocation, the response service, the dispatch coordinator with its
// middleware chain, the worker pool, the dead letter queue, boot-time
// recovery and the ingestion service.
//
// The root formdispatch package cannot import these subsystems because
// they import its sentinel errors. Engine sits above all of them and below
// the application layer.
//
// # Building an Engine
//
//	d, err := formdispatch.New(
//	    formdispatch.WithStore(mongoStore),
//	    formdispatch.WithShardID(3),
//	    formdispatch.WithWorkers(16),
//	)
//
//	eng, err := engine.Build(d,
//	    engine.WithJobRegistry(registry),
//	    engine.WithQueues(emailQueue, webhookQueue),
//	    engine.WithExtension(myExtension),
//	    engine.WithMiddleware(myMiddleware),
//	)
//
// # Lifecycle
//
// Start restores the identity allocator from the highest stored response
// of the shard, fails if any queue is not ready, starts the dispatch
// workers and runs one recovery pass in the background. Responses accepted
// while recovery runs are dispatched by the workers; recovery only scans
// up to the sequence restored at start.
//
//	if err := eng.Start(ctx); err != nil { ... }
//	resp, err := eng.Ingest().Submit(ctx, formID, owner, answers)
//	...
//	eng.Stop(shutdownCtx)
//
// # Options
//
//   - [WithQueues] registers job queue clients
//   - [WithJobRegistry] supplies per-job enqueue timeouts and rate limits
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] adds a middleware to the enqueue chain
//   - [WithBackoff] sets the wait strategy between dispatch attempts
//   - [WithChecker] sets the answer checker
//   - [WithFatalHandler] handles shard identity exhaustion
//   - [WithTracerProvider] and [WithMeterProvider] set OpenTelemetry providers
package engine
