package repository

import (
	"context"
	"errors"

	"github.com/sefazor/thumbgate/internal/models"
	"gorm.io/gorm"
)

var ErrUploadNotFound = errors.New("upload not found")

type UploadRepository struct {
	db *gorm.DB
}

func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{
		db: db,
	}
}

func (r *UploadRepository) Create(ctx context.Context, upload *models.Upload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

// Resolve looks up an upload by its storage path. It has no side effects
// and is safe to retry.
func (r *UploadRepository) Resolve(ctx context.Context, path string) (*models.Upload, error) {
	var upload models.Upload
	if err := r.db.WithContext(ctx).Where("path = ?", path).First(&upload).Error; err != nil {
		return nil, notFound(err, ErrUploadNotFound)
	}
	return &upload, nil
}

func (r *UploadRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Upload{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUploadNotFound
	}
	return nil
}
