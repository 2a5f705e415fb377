// Package content implements the publication workflow for blogs and
// editions.
//
// Items move through four states:
//
//	Draft -> Pending -> Approved(scheduled) -> Published
//
// The transition rules are pure functions in machine.go. Service applies
// them with authorization, an atomic conditional store update, audit
// records and notifications. Approved items become Published once their
// scheduled time passes; the Sweeper performs that promotion before every
// listing, on demand, and on a cron schedule.
package content
