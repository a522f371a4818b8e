package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/userauth/internal/domain"
	"github.com/Skotchmaster/userauth/internal/models"
	"github.com/Skotchmaster/userauth/internal/util"
)

func (r *GormRepo) FindUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUserIfNotExists returns domain.ErrConflict when the email is taken.
func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) error {
	tx := r.DB.WithContext(ctx).Where("email = ?", u.Email).FirstOrCreate(u)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormRepo) TouchLastLogin(ctx context.Context, id uint, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login_time", at).Error
}

// ListUsers expects column to be a whitelisted column name.
func (r *GormRepo) ListUsers(ctx context.Context, column string, desc bool, page util.Page) ([]models.User, error) {
	order := column + " ASC"
	if desc {
		order = column + " DESC"
	}
	q := r.DB.WithContext(ctx).Order(order).Order("id ASC")
	if page.Limit > 0 {
		q = q.Offset(page.Offset).Limit(page.Limit)
	}
	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// DeleteUsers hard-deletes users together with their tokens.
func (r *GormRepo) DeleteUsers(ctx context.Context, ids []uint) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteTokensOf(tx, tx.Model(&models.User{}).Select("id").Where("id IN ?", ids)); err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.User{})
		count = res.RowsAffected
		return res.Error
	})
	return count, err
}

func (r *GormRepo) DeleteUsersByStatus(ctx context.Context, status domain.UserStatus) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteTokensOf(tx, tx.Model(&models.User{}).Select("id").Where("status = ?", status)); err != nil {
			return err
		}
		res := tx.Where("status = ?", status).Delete(&models.User{})
		count = res.RowsAffected
		return res.Error
	})
	return count, err
}

func deleteTokensOf(tx *gorm.DB, users *gorm.DB) error {
	if err := tx.Where("user_id IN (?)", users).Delete(&models.RefreshToken{}).Error; err != nil {
		return err
	}
	return tx.Where("user_id IN (?)", users).Delete(&models.ActivationToken{}).Error
}

// UpdateStatus sets status on ids whose current status is in from, or on all
// of ids when from is empty.
func (r *GormRepo) UpdateStatus(ctx context.Context, ids []uint, status domain.UserStatus, from []domain.UserStatus) (int64, error) {
	q := r.DB.WithContext(ctx).Model(&models.User{}).Where("id IN ?", ids)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Update("status", status)
	return res.RowsAffected, res.Error
}

// ActivateUser moves an UNVERIFIED user to ACTIVE. It reports whether a row
// changed; ACTIVE and BLOCKED users are left alone.
func (r *GormRepo) ActivateUser(ctx context.Context, id uint) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND status = ?", id, domain.StatusUnverified).
		Update("status", domain.StatusActive)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindUserByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
