// Package ticketq provides the background job pipeline and automation rule
// engine for a multi-tenant helpdesk. It offers a durable, at-least-once job
// queue with typed handlers, exponential-backoff retry, a dead-letter archive
// with operator replay, and a condition/action rule evaluator that reacts to
// ticket lifecycle events.
//
// ticketq is designed as a library, not a service. Import it, configure a
// store, and register job handlers and automation rules as ordinary Go code.
//
// # Quick Start
//
//	p, err := ticketq.New(
//	    ticketq.WithStore(pgStore),
//	    ticketq.WithBatchSize(25),
//	)
//
// # Architecture
//
// ticketq follows a composable store pattern where each subsystem (job,
// queue, dlq, automation, ticket, schedule) defines its own store interface.
// A single backend implements all of them; the memory backend doubles as the
// test fixture.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package ticketq
