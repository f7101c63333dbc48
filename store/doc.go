// Package store defines the aggregate persistence interface composed
// from the per-subsystem store interfaces.
//
// Each subsystem owns its own narrow interface:
//
//   - job.Store            job records
//   - queue.Lists          pending / processing / failed lists
//   - dlq.Store            dead-letter records
//   - ticket.Store         tickets, tags, and users
//   - automation.Store     automation rules
//   - schedule.Store       recurring schedule entries
//
// A backend implements all of them behind a single connection. Three
// backends ship with the module:
//
//   - store/memory    in-process maps, for tests and development
//   - store/redis     Redis lists and hashes
//   - store/postgres  PostgreSQL via pgx, with embedded migrations
//
// # Usage
//
// Construct a backend and hand it to the engine:
//
//	st := memory.New()
//	if err := st.Migrate(ctx); err != nil {
//		log.Fatal(err)
//	}
//	p, err := ticketq.New(ticketq.WithStore(st))
//	if err != nil {
//		log.Fatal(err)
//	}
//	eng, err := engine.Build(p)
//
// Components that only need a slice of the store accept the narrow
// interface, so a custom backend can implement just the pieces it is
// used for.
package store
