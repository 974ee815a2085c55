// Package storage provides the low-level data infrastructure for the
// Pariksha backend: PostgreSQL connections with optional read replicas,
// the Redis cache client, and the S3 client used for audit archives.
//
// Higher-level packages own their schemas and queries (pkg/directory,
// pkg/audit, pkg/hierarchy); this package only hands them connections.
package storage
