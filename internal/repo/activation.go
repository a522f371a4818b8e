package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/models"
)

func (r *GormRepo) CreateActivation(ctx context.Context, t *models.ActivationToken) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *GormRepo) FindActivation(ctx context.Context, token string) (*models.ActivationToken, error) {
	var t models.ActivationToken
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// MarkActivationUsed sets used_at only if it is still NULL.
func (r *GormRepo) MarkActivationUsed(ctx context.Context, token string, at time.Time) error {
	res := r.DB.WithContext(ctx).Model(&models.ActivationToken{}).
		Where("token = ? AND used_at IS NULL", token).
		Update("used_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindActivation(ctx, token); err != nil {
			return err
		}
		return domain.ErrAlreadyUsed
	}
	return nil
}

func (r *GormRepo) DeleteStaleActivations(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("expires_at <= ? OR used_at IS NOT NULL", now).
		Delete(&models.ActivationToken{})
	return res.RowsAffected, res.Error
}
