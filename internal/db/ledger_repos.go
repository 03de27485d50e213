package db

import (
	"context"

	"courseflow/internal/types"
)

// SentJobsRepository provides data access for the sent_jobs ledger. The ledger
// records one row per logical delivery (user, content type, day, local date);
// the composite primary key makes marking idempotent.
type SentJobsRepository struct {
	db DBTX
}

// NewSentJobsRepository creates a new SentJobsRepository backed by the given
// database connection (pool or transaction).
func NewSentJobsRepository(db DBTX) *SentJobsRepository {
	return &SentJobsRepository{db: db}
}

// WasSent reports whether a delivery with the given coordinates is already
// recorded. forDate is a local calendar date in "2006-01-02" form.
func (r *SentJobsRepository) WasSent(ctx context.Context, userID int64, contentType types.ContentType, dayIndex int, forDate string) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM sent_jobs
			WHERE user_id = $1 AND content_type = $2 AND day_index = $3 AND for_date = $4
		 )`,
		userID, string(contentType), dayIndex, forDate,
	)
	if err := row.Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check sent_jobs ledger", err)
	}
	return exists, nil
}

// MarkSent records a delivery. It reports whether a row was actually inserted;
// false means the delivery was already recorded.
func (r *SentJobsRepository) MarkSent(ctx context.Context, entry types.SentJobEntry) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO sent_jobs (user_id, content_type, day_index, for_date)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT DO NOTHING`,
		entry.UserID, string(entry.ContentType), entry.DayIndex, entry.ForDate,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark sent_jobs ledger", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeliveriesRepository provides data access for the deliveries marker table,
// the per-(user, day, item) record the backlog reconstruction reads. Unlike
// sent_jobs it has no date component: a day's lesson or quest is delivered at
// most once over the course lifetime.
type DeliveriesRepository struct {
	db DBTX
}

// NewDeliveriesRepository creates a new DeliveriesRepository backed by the
// given database connection (pool or transaction).
func NewDeliveriesRepository(db DBTX) *DeliveriesRepository {
	return &DeliveriesRepository{db: db}
}

// WasSent reports whether the item was already delivered for the day.
func (r *DeliveriesRepository) WasSent(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM deliveries
			WHERE user_id = $1 AND day_index = $2 AND item_type = $3
		 )`,
		userID, dayIndex, string(itemType),
	)
	if err := row.Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check deliveries marker", err)
	}
	return exists, nil
}

// MarkSent records the delivery marker. Idempotent.
func (r *DeliveriesRepository) MarkSent(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO deliveries (user_id, day_index, item_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		userID, dayIndex, string(itemType),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark deliveries marker", err)
	}
	return nil
}
