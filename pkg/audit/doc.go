// Package audit provides the audit trail for the Pariksha testing platform.
//
// # Overview
//
// Every security-relevant action (logins, password changes, admin mutations,
// denied access) is recorded as an AuditEvent. Recording is fire-and-forget:
// services hand events to a Recorder and move on; a failed write is logged
// locally and never fails the operation that produced it.
//
// Events flow through an AsyncRecorder (buffered channel, background worker,
// drop-on-full) into one or more Logger sinks:
//
//   - DBLogger writes to the audit_logs table and backs the query API
//   - FileLogger appends newline-delimited JSON to a local file
//   - MultiLogger fans out to several sinks
//
// # Usage Example
//
//	recorder := audit.NewAsyncRecorder(dbLogger, audit.DefaultQueueSize, logger, metrics)
//	defer recorder.Close()
//
//	recorder.Record(ctx, &audit.AuditEvent{
//		EventType:  audit.EventTypeAuthLoginFailed,
//		Status:     audit.EventStatusFailure,
//		ActorID:    &user.ID,
//		ActorEmail: user.Email,
//		ActorRoles: user.RoleNames(),
//		Description: "invalid credentials",
//	})
//
// Query and retention live on the DBLogger: Search with filters, GetStats,
// and DeleteBefore for the retention job. The Archiver exports expiring rows
// to S3 as NDJSON before deletion.
//
// # Related Packages
//
//   - pkg/auth: Emits authentication events
//   - pkg/api: Emits admin mutation events and serves the audit query API
//   - pkg/storage: The S3 client behind the archive export
package audit
