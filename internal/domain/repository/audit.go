package repository

import (
	"context"

	"github.com/avoray/ordersync/internal/domain/model"
)

// AuditRepository describes the append-only transition trail and incident log.
type AuditRepository interface {
	AppendTransition(ctx context.Context, rec model.AuditRecord) error
	ListTransitions(ctx context.Context, orderID int64) ([]model.AuditRecord, error)
	RecordIncident(ctx context.Context, inc model.Incident) (*model.Incident, error)
}
