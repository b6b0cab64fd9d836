package returns

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository returns a returns repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, ret *models.Return) error {
	return r.db.WithContext(ctx).Create(ret).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ret).Error; err != nil {
		return nil, err
	}
	return &ret, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&ret).Error
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// FindOpenForItem returns the open return filed against itemID, or nil.
func (r *repository) FindOpenForItem(ctx context.Context, itemID uuid.UUID) (*models.Return, error) {
	var ret models.Return
	err := r.db.WithContext(ctx).
		Where("order_item_id = ? AND status NOT IN ?", itemID,
			[]enums.ReturnStatus{enums.ReturnStatusRejected, enums.ReturnStatusClosed}).
		Order("created_at DESC").
		First(&ret).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

type listQuery struct {
	UserID   *uuid.UUID
	SellerID *uuid.UUID
	Status   *enums.ReturnStatus
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *repository) List(ctx context.Context, query listQuery) ([]models.Return, error) {
	q := r.db.WithContext(ctx).Model(&models.Return{})
	if query.UserID != nil {
		q = q.Where("user_id = ?", *query.UserID)
	}
	if query.SellerID != nil {
		q = q.Where("seller_id = ?", *query.SellerID)
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var rows []models.Return
	err := q.Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(query.Limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Return{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// PenaltyCandidates lists returns whose evidence video has waited past cutoff
// without a seller review and that have not been penalized yet.
func (r *repository) PenaltyCandidates(ctx context.Context, cutoff time.Time, limit int) ([]models.Return, error) {
	var rows []models.Return
	err := r.db.WithContext(ctx).
		Where("video_uploaded_at IS NOT NULL AND video_uploaded_at < ?", cutoff).
		Where("video_reviewed_by_seller = ? AND penalty_applied = ?", false, false).
		Order("video_uploaded_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ApplyPenalty sets the penalty flags only while the selection predicate still
// holds. It reports false when another sweep or a late review got there first.
func (r *repository) ApplyPenalty(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Return{}).
		Where("id = ? AND penalty_applied = ? AND video_reviewed_by_seller = ? AND video_uploaded_at < ?", id, false, false, cutoff).
		UpdateColumns(map[string]any{
			"penalty_applied": true,
			"auto_approved":   true,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
