package vehicle

import (
	"time"
)

// State 车辆运行状态枚举（持久化为字符串）。
type State string

const (
	StateActive        State = "active"         // 可用
	StateInactive      State = "inactive"       // 停用（不再参与排班/保养）
	StateInMaintenance State = "in_maintenance" // 保养中（被某个工单占用）
	StateInShop        State = "in_shop"        // 送修（外部修理厂）
)

// Valid 校验是否为已知状态。边界层收到未知值时应拒绝。
func (s State) Valid() bool {
	switch s {
	case StateActive, StateInactive, StateInMaintenance, StateInShop:
		return true
	}
	return false
}

// Vehicle 是 vehicles 表的 GORM 模型。
// 车辆不做物理删除，停用走 State 流转；Odometer 只增不减。
type Vehicle struct {
	ID          string    `gorm:"primaryKey;size:36"`
	PlateNumber string    `gorm:"uniqueIndex;size:32;not null"`
	VIN         string    `gorm:"size:64"`
	Model       string    `gorm:"size:64"`
	State       State     `gorm:"type:varchar(16);index;not null"`
	Odometer    int64     `gorm:"not null;default:0"` // 当前里程（km）
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
}
