package assignment

import "time"

// Status 排班状态枚举（持久化为字符串）。
type Status string

const (
	StatusPending    Status = "pending"     // 已登记，待确认
	StatusAssigned   Status = "assigned"    // 已确认车辆/司机
	StatusInProgress Status = "in_progress" // 执行中
	StatusCompleted  Status = "completed"   // 已完成（终态）
	StatusCancelled  Status = "cancelled"   // 已取消（终态）
)

// Valid 校验是否为已知状态。
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal 是否为终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// nonTerminalStatuses 参与冲突检测的状态集合。
var nonTerminalStatuses = []Status{StatusPending, StatusAssigned, StatusInProgress}

// allowTransition 排班状态机的允许流转关系。
var allowTransition = map[Status][]Status{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func canTransition(from, to Status) bool {
	for _, s := range allowTransition[from] {
		if s == to {
			return true
		}
	}
	return false
}

// RouteAssignment 线路排班 GORM 模型（route_assignments 表）。
// 时间窗为半开区间 [StartsAt, EndsAt)；EndsAt 为空表示未知，
// 冲突检测时按无界处理（从 StartsAt 起挡住所有后续请求，保守设计）。
type RouteAssignment struct {
	ID              string     `gorm:"primaryKey;size:36"`
	VehicleID       string     `gorm:"index;size:36;not null"`
	DriverID        string     `gorm:"index;size:36;not null"`
	RouteTemplateID string     `gorm:"size:36"`
	Status          Status     `gorm:"type:varchar(16);index;not null"`
	StartsAt        time.Time  `gorm:"index;not null"`
	EndsAt          *time.Time `gorm:"index"`
	StartOdometer   int64      `gorm:"not null;default:0"`
	EndOdometer     *int64
	Notes           string    `gorm:"size:512"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}
