package model

import "time"

// AuditRecord is one immutable entry in the order transition trail.
type AuditRecord struct {
	ID         int64
	OrderID    int64
	ActorID    int64
	FromStatus OrderStatus
	ToStatus   OrderStatus
	RecordedAt time.Time
}

// IncidentSeverity grades reconciliation anomalies.
type IncidentSeverity string

const (
	IncidentSeverityHigh   IncidentSeverity = "high"
	IncidentSeverityMedium IncidentSeverity = "medium"
)

// Incident is an append-only anomaly record for human review. Financial
// discrepancies are never auto-corrected.
type Incident struct {
	ID                int64
	Kind              string
	Severity          IncidentSeverity
	OrderID           *int64
	ProviderReference string
	Details           string
	RecordedAt        time.Time
}
