package field

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/krushibheru/agromonitor-backend/internal/domain"
	"github.com/krushibheru/agromonitor-backend/internal/platform/logger"
)

type FieldRepo interface {
	Create(ctx context.Context, tx *gorm.DB, fields []*types.Field) ([]*types.Field, error)
	GetByID(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID) (*types.Field, error)
	Exists(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID) (bool, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Field, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Field, error)
	ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error)
	ListIDsByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, status string) error
	UpdateCropping(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, cropType, cropStatus, season string) error
	DeleteByIDs(ctx context.Context, tx *gorm.DB, fieldIDs []uuid.UUID) error
}

type fieldRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFieldRepo(db *gorm.DB, baseLog *logger.Logger) FieldRepo {
	repoLog := baseLog.With("repo", "FieldRepo")
	return &fieldRepo{db: db, log: repoLog}
}

func (fr *fieldRepo) Create(ctx context.Context, tx *gorm.DB, fields []*types.Field) ([]*types.Field, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	if len(fields) == 0 {
		return []*types.Field{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&fields).Error; err != nil {
		return nil, err
	}

	return fields, nil
}

func (fr *fieldRepo) GetByID(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID) (*types.Field, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	var result types.Field

	if err := transaction.WithContext(ctx).
		Where("id = ?", fieldID).
		Limit(1).
		Find(&result).Error; err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (fr *fieldRepo) Exists(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	var count int64

	if err := transaction.WithContext(ctx).
		Model(&types.Field{}).
		Where("id = ?", fieldID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (fr *fieldRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Field, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	var results []*types.Field

	if err := transaction.WithContext(ctx).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (fr *fieldRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Field, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	var results []*types.Field

	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (fr *fieldRepo) ListIDs(ctx context.Context, tx *gorm.DB) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	var ids []uuid.UUID

	if err := transaction.WithContext(ctx).
		Model(&types.Field{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (fr *fieldRepo) ListIDsByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	var ids []uuid.UUID

	if err := transaction.WithContext(ctx).
		Model(&types.Field{}).
		Where("user_id = ?", userID).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (fr *fieldRepo) UpdateStatus(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, status string) error {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Field{}).
		Where("id = ?", fieldID).
		Update("status", status).Error
}

func (fr *fieldRepo) UpdateCropping(ctx context.Context, tx *gorm.DB, fieldID uuid.UUID, cropType, cropStatus, season string) error {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	return transaction.WithContext(ctx).
		Model(&types.Field{}).
		Where("id = ?", fieldID).
		Updates(map[string]interface{}{
			"crop_type":   cropType,
			"crop_status": cropStatus,
			"season":      season,
		}).Error
}

func (fr *fieldRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, fieldIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = fr.db
	}

	if len(fieldIDs) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("id IN ?", fieldIDs).
		Delete(&types.Field{}).Error
}
