package workorder

import "time"

// Status 工单状态枚举（持久化为字符串）。
type Status string

const (
	StatusNotStarted Status = "not_started" // 已创建，待开工
	StatusInProgress Status = "in_progress" // 维修中（占用车辆）
	StatusCompleted  Status = "completed"   // 已完成（终态）
	StatusRejected   Status = "rejected"    // 已驳回（终态，仅能从 not_started 进入）
	StatusCancelled  Status = "cancelled"   // 已取消（终态）
)

// Valid 校验是否为已知状态。边界层收到未知值时应拒绝。
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Terminal 是否为终态（不允许再流转）。
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// WorkOrder 工单 GORM 模型（work_orders 表）。
// Status 只能经由 Service.Transition 变更；CompletedAt 当且仅当进入 completed 时写入。
type WorkOrder struct {
	ID          string  `gorm:"primaryKey;size:36"`
	VehicleID   string  `gorm:"index;size:36;not null"`
	RequesterID string  `gorm:"index;size:36;not null"` // 发起人
	AssigneeID  *string `gorm:"size:36"`                // 负责技师，开工时落上
	Status      Status  `gorm:"type:varchar(16);index;not null"`
	Odometer    int64   `gorm:"not null"` // 创建时的车辆里程
	Description string  `gorm:"size:1024"`

	// 计划生成的工单带上来源，调度器据此做幂等判断
	PlanID            *string `gorm:"index;size:36"`
	VehiclePlanLinkID *string `gorm:"size:36"`

	Tasks []WorkOrderTask `gorm:"foreignKey:WorkOrderID"`

	CreatedAt   time.Time `gorm:"autoCreateTime"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`
	CompletedAt *time.Time
}

// WorkOrderTask 工单的检查清单项（work_order_tasks 表）。
// DurationMinutes 仅在 Completed 从 false 变 true 且有 StartedAt 时计算，
// 反向流转（true -> false）时清空。
type WorkOrderTask struct {
	ID              string  `gorm:"primaryKey;size:36"`
	WorkOrderID     string  `gorm:"index;size:36;not null"`
	Description     string  `gorm:"size:255;not null"`
	Completed       bool    `gorm:"not null;default:false"`
	AssigneeID      *string `gorm:"size:36"`
	StartedAt       *time.Time
	FinishedAt      *time.Time
	DurationMinutes *int64

	Position  int       `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
