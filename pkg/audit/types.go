package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin                EventType = "auth.login"
	EventTypeAuthLoginFailed          EventType = "auth.login_failed"
	EventTypeAuthTokenRefresh         EventType = "auth.token_refresh"
	EventTypeAuthPasswordChange       EventType = "auth.password_change"
	EventTypeAuthPasswordChangeFailed EventType = "auth.password_change_failed"

	// Authorization events
	EventTypeAuthzAccessDenied EventType = "authz.access_denied"

	// Admin events
	EventTypeAdminUserCreate       EventType = "admin.user_create"
	EventTypeAdminUserUpdate       EventType = "admin.user_update"
	EventTypeAdminUserDeactivate   EventType = "admin.user_deactivate"
	EventTypeAdminUserDelete       EventType = "admin.user_delete"
	EventTypeAdminRoleCreate       EventType = "admin.role_create"
	EventTypeAdminRoleUpdate       EventType = "admin.role_update"
	EventTypeAdminRoleDelete       EventType = "admin.role_delete"
	EventTypeAdminPermissionCreate EventType = "admin.permission_create"
	EventTypeAdminPermissionUpdate EventType = "admin.permission_update"
	EventTypeAdminPermissionDelete EventType = "admin.permission_delete"
	EventTypeAdminHierarchyImport  EventType = "admin.hierarchy_import"

	// Federated login events
	EventTypeSSOLogin           EventType = "sso.login"
	EventTypeSSOUserProvisioned EventType = "sso.user_provisioned"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource an event acted on
type ResourceType string

const (
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeRegion     ResourceType = "region"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information. ActorID is nil when the action cannot be attributed
	// to a known account.
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	ActorEmail string     `json:"actor_email,omitempty"`
	ActorRoles []string   `json:"actor_roles,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Details. Description is the human-readable summary; ErrorMessage keeps
	// the precise internal reason even when the client saw a generic one.
	Description  string                 `json:"description,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// normalize fills defaults the sinks rely on
func (e *AuditEvent) normalize() {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

// SearchFilter narrows audit log queries. Nil/zero fields mean "no
// constraint".
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Exact event ID (single-event lookup)
	ID *int64

	// Actor filters
	ActorID    *uuid.UUID
	ActorEmail string

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Resource filters
	ResourceType ResourceType
	ResourceID   string

	// Request context filters
	IPAddress string

	// Pagination; results are always newest-first
	Limit  int
	Offset int
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// AuditStats represents statistics about audit logs
type AuditStats struct {
	TotalEvents    int64                 `json:"total_events"`
	EventsByType   map[EventType]int64   `json:"events_by_type"`
	EventsByStatus map[EventStatus]int64 `json:"events_by_status"`
	UniqueActors   int64                 `json:"unique_actors"`
	UniqueIPs      int64                 `json:"unique_ips"`
	FailedLogins   int64                 `json:"failed_logins"`
	AccessDenials  int64                 `json:"access_denials"`
	TimeRange      *TimeRange            `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit logs are kept. The default covers a
// full academic year so an exam-season incident can be investigated after
// results are published.
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int

	// ArchiveBucket, when set, receives expiring rows as NDJSON before they
	// are deleted. Empty means delete-only.
	ArchiveBucket string
}

// DefaultRetentionPolicy returns the default retention policy (365 days,
// delete-only).
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 365,
	}
}
