package lineitems

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/veriline/veriline-backend/internal/repo"
	"github.com/veriline/veriline-backend/pkg/db/models"
)

// Repository persists line items and their validation records.
type Repository struct {
	repo.Base
}

// NewRepository constructs a line item repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{Base: repo.NewBase(tx)}
}

// CreateIfAbsent inserts the item unless its id already exists and returns
// the authoritative row. The second return reports whether this call created
// it. Safe under concurrent submissions of the same client-supplied id.
func (r *Repository) CreateIfAbsent(ctx context.Context, item *models.LineItem) (*models.LineItem, bool, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	insert := r.DB(ctx).Exec(`INSERT INTO line_items
  (id, raw_name, raw_description, quantity, unit, unit_price, service_line, service_type, scope_of_work, status, ingest_passes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO NOTHING`,
		item.ID, item.RawName, item.RawDescription, item.Quantity, item.Unit, item.UnitPrice,
		item.ServiceLine, item.ServiceType, item.ScopeOfWork, item.Status)
	if insert.Error != nil {
		return nil, false, insert.Error
	}

	saved, err := r.FindByID(ctx, item.ID)
	if err != nil {
		return nil, false, err
	}
	return saved, insert.RowsAffected > 0, nil
}

// FindByID loads one line item. Not-found surfaces as gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LineItem, error) {
	var item models.LineItem
	if err := r.DB(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// ClaimLock atomically claims the orchestrator lock with the given token.
// Returns false when another transition already holds it.
func (r *Repository) ClaimLock(ctx context.Context, id uuid.UUID, token string) (bool, error) {
	res := r.DB(ctx).Exec(
		`UPDATE line_items SET orchestrator_lock = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND orchestrator_lock IS NULL`,
		token, id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseLock clears the orchestrator lock if this token still holds it.
func (r *Repository) ReleaseLock(ctx context.Context, id uuid.UUID, token string) error {
	return r.DB(ctx).Exec(
		`UPDATE line_items SET orchestrator_lock = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND orchestrator_lock = ?`,
		id, token).Error
}

// Update persists the full line item row.
func (r *Repository) Update(ctx context.Context, item *models.LineItem) error {
	return r.DB(ctx).Save(item).Error
}

// InsertValidationRecord appends one verdict for a line item.
func (r *Repository) InsertValidationRecord(ctx context.Context, record *models.ValidationRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.DB(ctx).Create(record).Error
}

// LatestValidationRecord returns the newest verdict for the item, or nil
// when it has none.
func (r *Repository) LatestValidationRecord(ctx context.Context, lineItemID uuid.UUID) (*models.ValidationRecord, error) {
	var record models.ValidationRecord
	err := r.DB(ctx).
		Where("line_item_id = ?", lineItemID).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
