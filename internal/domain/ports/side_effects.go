package ports

import (
	"context"

	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
)

// Notifier sends the admin notification for a completed payment
type Notifier interface {
	Notify(ctx context.Context, snap models.Snapshot) error
}

// Archiver writes the finalized record to durable archive storage
type Archiver interface {
	Archive(ctx context.Context, snap models.Snapshot) error
}
