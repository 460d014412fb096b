// Package sqlite implements store.Store on database/sql with the pure-Go
// modernc.org/sqlite driver. Suitable for embedded/edge deployments, CLI
// tools, and standalone applications.
//
// Either let the store open and own the database:
//
//	s, _ := sqlite.Open(ctx, "file:formdispatch.db?_pragma=busy_timeout(5000)")
//	defer s.Close()
//	s.Migrate(ctx)
//
// or pass an existing handle to New, in which case the caller owns it and
// Close leaves it open.
package sqlite
