package user

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, u *User) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*User, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var u User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, apperr.FromDB(err, "user %s not found", id)
	}
	return &u, nil
}

// Exists 存在性校验，工单生成 / 流转时用。
func (r *Repo) Exists(ctx context.Context, id string) error {
	_, err := r.FindByID(ctx, id)
	return err
}
