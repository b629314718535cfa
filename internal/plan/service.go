package plan

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/vehicle"
)

// Service 封装保养计划的用例（不依赖传输层），便于复用和测试。
type Service struct {
	repo     *Repo
	vehicles *vehicle.Repo
}

func NewService(repo *Repo, vehicles *vehicle.Repo) *Service {
	return &Service{repo: repo, vehicles: vehicles}
}

// CreatePlanInput 创建计划的入参。
type CreatePlanInput struct {
	Description      string
	RecurrenceAmount int64
	RecurrenceUnit   RecurrenceUnit
	StartsAt         time.Time
	Preventive       bool
	TaskNames        []string // 按顺序的任务模板名
}

// CreatePlan 原子创建计划与任务模板。周期单位必须是封闭枚举内的值。
func (s *Service) CreatePlan(ctx context.Context, in CreatePlanInput) (*MaintenancePlan, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if strings.TrimSpace(in.Description) == "" {
		return nil, apperr.Validation("plan description required")
	}
	if !in.RecurrenceUnit.Valid() {
		return nil, apperr.Validation("unknown recurrence unit %q", in.RecurrenceUnit)
	}
	if in.RecurrenceAmount <= 0 {
		return nil, apperr.Validation("recurrence amount must be positive, got %d", in.RecurrenceAmount)
	}

	p := &MaintenancePlan{
		ID:               uuid.NewString(),
		Description:      strings.TrimSpace(in.Description),
		RecurrenceAmount: in.RecurrenceAmount,
		RecurrenceUnit:   in.RecurrenceUnit,
		StartsAt:         in.StartsAt,
		Active:           true,
		Preventive:       in.Preventive,
	}
	for i, name := range in.TaskNames {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, apperr.Validation("plan task name %d is empty", i)
		}
		p.Tasks = append(p.Tasks, PlanTask{
			ID:       uuid.NewString(),
			PlanID:   p.ID,
			Name:     name,
			Position: i,
		})
	}

	if err := s.repo.CreateWithTasks(ctx, p); err != nil {
		return nil, apperr.Wrap(apperr.KindTransaction, err, "failed to create plan")
	}
	return p, nil
}

// LinkVehicle 把车辆挂到计划上，建立到期跟踪记录。
// NextDueAt* 留空，首次由调度器或手工生成时填充。
func (s *Service) LinkVehicle(ctx context.Context, planID, vehicleID string) (*VehiclePlanLink, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if _, err := s.repo.GetWithTasks(ctx, planID); err != nil {
		return nil, err
	}
	if _, err := s.vehicles.FindByID(ctx, vehicleID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetLink(ctx, vehicleID, planID); err == nil {
		return nil, apperr.Validation("vehicle %s is already linked to plan %s", vehicleID, planID)
	}

	link := &VehiclePlanLink{
		ID:        uuid.NewString(),
		VehicleID: vehicleID,
		PlanID:    planID,
	}
	if err := s.repo.CreateLink(ctx, link); err != nil {
		return nil, apperr.Wrap(apperr.KindTransaction, err, "failed to link vehicle to plan")
	}
	return link, nil
}
