package plan

import (
	"time"
)

// RecurrenceUnit 保养计划的周期单位。
type RecurrenceUnit string

const (
	UnitDistance RecurrenceUnit = "distance" // 按里程（km）
	UnitDays     RecurrenceUnit = "days"
	UnitWeeks    RecurrenceUnit = "weeks"
	UnitMonths   RecurrenceUnit = "months"
)

// Valid 校验是否为已知周期单位。
func (u RecurrenceUnit) Valid() bool {
	switch u {
	case UnitDistance, UnitDays, UnitWeeks, UnitMonths:
		return true
	}
	return false
}

// TimeBased 是否为时间类周期（非里程）。
func (u RecurrenceUnit) TimeBased() bool {
	return u.Valid() && u != UnitDistance
}

// NextDate 从 base 推算下一次到期日期。仅对时间类单位有意义。
func (u RecurrenceUnit) NextDate(base time.Time, amount int) time.Time {
	switch u {
	case UnitDays:
		return base.AddDate(0, 0, amount)
	case UnitWeeks:
		return base.AddDate(0, 0, 7*amount)
	case UnitMonths:
		return base.AddDate(0, amount, 0)
	}
	return base
}

// MaintenancePlan 保养计划（maintenance_plans 表）。
// 任务模板 Tasks 随计划一次性创建，顺序由 Position 保证。
type MaintenancePlan struct {
	ID               string         `gorm:"primaryKey;size:36"`
	Description      string         `gorm:"size:255;not null"`
	RecurrenceAmount int64          `gorm:"not null"` // 周期数值（km 或 天/周/月数）
	RecurrenceUnit   RecurrenceUnit `gorm:"type:varchar(16);not null"`
	StartsAt         time.Time      // 计划生效日期
	Active           bool           `gorm:"index;not null;default:true"`
	Preventive       bool           `gorm:"not null;default:true"` // 预防性保养 / 纠正性维修
	Tasks            []PlanTask     `gorm:"foreignKey:PlanID"`
	CreatedAt        time.Time      `gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime"`
}

// PlanTask 计划的任务模板（plan_tasks 表）。
type PlanTask struct {
	ID          string    `gorm:"primaryKey;size:36"`
	PlanID      string    `gorm:"index;size:36;not null"`
	Name        string    `gorm:"size:128;not null"`
	Description string    `gorm:"size:255"`
	Position    int       `gorm:"not null;default:0"` // 清单内顺序
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// VehiclePlanLink (vehicle, plan) 的到期跟踪记录（vehicle_plan_links 表）。
// 每个 (vehicle, plan) 组合有且只有一条；NextDueAt* 仅在首次生成前为空。
type VehiclePlanLink struct {
	ID        string `gorm:"primaryKey;size:36"`
	VehicleID string `gorm:"uniqueIndex:uniq_vehicle_plan;size:36;not null"`
	PlanID    string `gorm:"uniqueIndex:uniq_vehicle_plan;size:36;not null"`

	LastDoneAtOdometer *int64
	LastDoneAtDate     *time.Time
	NextDueAtOdometer  *int64
	NextDueAtDate      *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
