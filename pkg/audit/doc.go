// Package audit records authorization and content events.
//
// Role and permission changes, denied access and content transitions are
// written through a Logger. DBLogger stores them in the audit_logs table and
// serves them back through GET /api/v1/audit. Recording is best-effort: a
// failed write is logged and never fails the operation being audited.
package audit
