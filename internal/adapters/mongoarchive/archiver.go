package mongoarchive

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kevin07696/checkout-aggregator/internal/domain/models"
	"github.com/kevin07696/checkout-aggregator/internal/domain/ports"
)

const collectionName = "completed_payments"

// Archiver writes finalized payment snapshots to a MongoDB collection.
// Upsert on transaction id keeps the write idempotent should a duplicate
// dispatch ever slip through.
type Archiver struct {
	collection *mongo.Collection
	logger     ports.Logger
}

// NewArchiver creates a new Mongo archiver
func NewArchiver(db *mongo.Database, logger ports.Logger) *Archiver {
	return &Archiver{
		collection: db.Collection(collectionName),
		logger:     logger,
	}
}

// Archive upserts the snapshot keyed by transaction id
func (a *Archiver) Archive(ctx context.Context, snap models.Snapshot) error {
	doc := bson.M{
		"transaction_id":  snap.TransactionID,
		"provider":        string(snap.Provider),
		"amount":          snap.Amount.StringFixed(2),
		"customer_name":   snap.Customer.Name,
		"customer_email":  snap.Customer.Email,
		"customer_phone":  snap.Customer.Phone,
		"plan":            snap.Plan.Plan,
		"plan_duration":   snap.Plan.Duration,
		"plan_add_ons":    snap.Plan.AddOns,
		"state":           string(snap.State),
		"provider_handle": snap.ProviderHandle,
		"completed_at":    snap.CompletedAt,
		"archived_at":     time.Now(),
	}

	_, err := a.collection.UpdateOne(ctx,
		bson.M{"transaction_id": snap.TransactionID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("archive transaction %s: %w", snap.TransactionID, err)
	}

	a.logger.Info("transaction archived",
		ports.String("transaction_id", snap.TransactionID))
	return nil
}

var _ ports.Archiver = (*Archiver)(nil)
