package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"supplier-import-service/internal/models"
)

// ProfileRepositoryInterface defines the mapping profile persistence contract
type ProfileRepositoryInterface interface {
	UpsertDefault(ctx context.Context, profile *models.MappingProfile) error
	GetDefault(ctx context.Context, tenantID string, supplierID uuid.UUID) (*models.MappingProfile, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.MappingProfile, error)
	ListBySupplier(ctx context.Context, tenantID string, supplierID uuid.UUID) ([]models.MappingProfile, error)
	Save(ctx context.Context, profile *models.MappingProfile) error
	Delete(ctx context.Context, tenantID string, id uuid.UUID) error
}

// ProfileRepository handles database operations for mapping profiles
type ProfileRepository struct {
	db *gorm.DB
}

// Ensure ProfileRepository implements the interface
var _ ProfileRepositoryInterface = (*ProfileRepository)(nil)

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// UpsertDefault saves the profile as the supplier's default, demoting any
// previously-default profile in the same transaction so that at most one
// default per supplier exists at a time.
func (r *ProfileRepository) UpsertDefault(ctx context.Context, profile *models.MappingProfile) error {
	profile.IsDefault = true
	profile.UpdatedAt = time.Now()
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.MappingProfile{}).
			Where("tenant_id = ? AND supplier_id = ? AND is_default = ? AND id <> ?",
				profile.TenantID, profile.SupplierID, true, profile.ID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Save(profile).Error
	})
}

// GetDefault retrieves the supplier's default profile
func (r *ProfileRepository) GetDefault(ctx context.Context, tenantID string, supplierID uuid.UUID) (*models.MappingProfile, error) {
	var profile models.MappingProfile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND supplier_id = ? AND is_default = ?", tenantID, supplierID, true).
		First(&profile).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetByID retrieves a profile by ID
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MappingProfile, error) {
	var profile models.MappingProfile
	err := r.db.WithContext(ctx).First(&profile, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListBySupplier retrieves all profiles for a supplier
func (r *ProfileRepository) ListBySupplier(ctx context.Context, tenantID string, supplierID uuid.UUID) ([]models.MappingProfile, error) {
	var profiles []models.MappingProfile
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND supplier_id = ?", tenantID, supplierID).
		Order("updated_at DESC").
		Find(&profiles).Error
	return profiles, err
}

// Save persists a profile without touching the default flag
func (r *ProfileRepository) Save(ctx context.Context, profile *models.MappingProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	profile.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(profile).Error
}

// Delete removes a profile
func (r *ProfileRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&models.MappingProfile{}).Error
}
