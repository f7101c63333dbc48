// Package automation implements the rule engine that reacts to ticket
// lifecycle events: a condition evaluator, an action executor, and
// tenant-scoped rule lookup.
//
// # Rules
//
// A [Rule] binds a trigger (TICKET_CREATED, COMMENT_ADDED, ...) to an
// ordered list of typed [Condition] predicates and [Action] mutations.
// Rules are tenant-scoped: only rules matching the firing org and
// trigger are candidates, evaluated in priority-descending order.
//
// # Evaluation
//
// Conditions AND together over a read-only [Snapshot] of the ticket and
// its tag names, fetched once per pass. An empty condition list always
// matches. [Evaluate] and [Match] are pure functions.
//
// # Execution
//
// Actions run in list order, best-effort: a failing action is logged
// and execution continues with the next action and the remaining rules.
// There is no rollback. Tagging is intentionally independent of
// assignment, so an all-or-nothing transaction here would be a behavior
// change, not a fix.
//
// The notify action and the SLA recompute that follows a priority
// change enqueue background jobs through the [EnqueueFunc] callback;
// the engine never executes handlers inline.
//
// # Entry points
//
//	engine.TicketCreated(ctx, ticketID)
//	engine.TicketUpdated(ctx, ticketID)
//	engine.CommentAdded(ctx, ticketID)
//
// Field-level triggers (STATUS_CHANGED, ASSIGNED, ...) go through the
// generic [Engine.Fire]. Each pass returns a [Result] with matched and
// executed rule counts for observability.
package automation
