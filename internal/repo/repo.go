package repo

import "gorm.io/gorm"

// GormRepo is the credential store and user directory backed by gorm.
type GormRepo struct {
	DB *gorm.DB
}

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}
