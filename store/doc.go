// Package store names the full persistence surface a formdispatch backend
// provides: the response outbox, the form lookup and the dead-letter
// records, behind one connection with a shared Migrate/Ping/Close
// lifecycle.
//
// Backends live in subpackages:
//
//   - store/mongo     responses and forms as collections, int64 _id (mongo-driver v2)
//   - store/postgres  BIGINT keys and a partial index on unprocessed rows (pgx/v5)
//   - store/sqlite    single-connection embedded file (modernc.org/sqlite)
//   - store/memory    maps, for tests and throwaway dev runs
//
// Open one, run Migrate before the engine starts (the recovery scan relies
// on the unprocessed index), then hand it to the dispatcher:
//
//	s, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
//	if err != nil {
//		return err
//	}
//	if err := s.Migrate(ctx); err != nil {
//		return err
//	}
//	d, err := formdispatch.New(formdispatch.WithStore(s))
//
// Every backend runs store/storetest from its own tests.
package store
