package user

import (
	"time"
)

// User 是 users 表的 GORM 模型。
// 本核心只做存在性校验（工单的 requester / actor），角色与凭证逻辑在外部系统。
type User struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Username  string    `gorm:"uniqueIndex;size:64;not null"`
	Nickname  string    `gorm:"size:64"`
	Phone     string    `gorm:"size:32"`
	Email     string    `gorm:"size:128"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
