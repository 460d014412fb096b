// Package formdispatch assigns durable, shard-scoped identities to submitted
// form responses, persists them, and forwards each one to the job queues its
// form declares. Delivery is at-least-once: a response carries a processed
// flag that flips only after every known job has been accepted by its queue,
// and a recovery pass at boot redispatches anything left unprocessed.
//
// formdispatch is a library first. Configure a store and a set of queue
// clients, build an engine, and submit responses.
//
// # Quick Start
//
//	d, err := formdispatch.New(
//	    formdispatch.WithStore(mongoStore),
//	    formdispatch.WithShardID(3),
//	)
//	eng, err := engine.Build(d, engine.WithQueues(queues))
//	err = eng.Start(ctx)
//
// # Architecture
//
// Each subsystem (response, form, dlq) defines its own store interface and a
// single backend implements all of them. Identities are 64-bit values: the
// shard id in the high bits and a per-shard monotonic sequence in the low
// 50 bits, so ordering by identity within a shard is insertion order.
package formdispatch
