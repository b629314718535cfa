package assignment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/logger"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/tracing"
	"github.com/SmartFleetOps/SmartFleetOps/internal/metrics"
	"github.com/SmartFleetOps/SmartFleetOps/internal/notify"
	"github.com/SmartFleetOps/SmartFleetOps/internal/user"
	"github.com/SmartFleetOps/SmartFleetOps/internal/vehicle"
)

// Service 排班用例：冲突检测、创建/更新、状态流转、收车。
// 同一台车或同一个司机的非终态排班时间窗不允许相交（见 Repo.FindFirstConflict）。
type Service struct {
	db       *gorm.DB
	repo     *Repo
	vehicles *vehicle.Repo
	users    *user.Repo
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      logger.Logger

	now func() time.Time
}

func NewService(db *gorm.DB, repo *Repo, vehicles *vehicle.Repo, users *user.Repo, notifier notify.Notifier, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		vehicles: vehicles,
		users:    users,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// Validate 校验时间窗对车辆与司机都无冲突，供外层在写入前做预检。
// 先查车辆冲突再查司机冲突，错误带上第一条冲突排班的 id。
func (s *Service) Validate(ctx context.Context, vehicleID, driverID string, start time.Time, end *time.Time, excludeID string) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("service not initialized")
	}
	return s.validateInTx(ctx, nil, vehicleID, driverID, start, end, excludeID)
}

func (s *Service) validateInTx(ctx context.Context, tx *gorm.DB, vehicleID, driverID string, start time.Time, end *time.Time, excludeID string) error {
	if end != nil && !end.After(start) {
		return apperr.Validation("assignment end must be after start")
	}

	if c, err := s.repo.FindFirstConflict(ctx, tx, scopeVehicle, vehicleID, start, end, excludeID); err != nil {
		return apperr.Transaction(err)
	} else if c != nil {
		s.metrics.AssignmentConflicts.WithLabelValues("vehicle").Inc()
		return apperr.VehicleConflict(c.ID, "vehicle %s already booked by assignment %s", vehicleID, c.ID)
	}

	if c, err := s.repo.FindFirstConflict(ctx, tx, scopeDriver, driverID, start, end, excludeID); err != nil {
		return apperr.Transaction(err)
	} else if c != nil {
		s.metrics.AssignmentConflicts.WithLabelValues("driver").Inc()
		return apperr.DriverConflict(c.ID, "driver %s already booked by assignment %s", driverID, c.ID)
	}
	return nil
}

// CreateInput 创建排班的入参。
type CreateInput struct {
	VehicleID       string
	DriverID        string
	RouteTemplateID string
	StartsAt        time.Time
	EndsAt          *time.Time
	StartOdometer   int64
	Notes           string
}

// Create 创建排班。冲突检测和写入在同一个事务内完成，
// 避免两个并发请求都先通过检测再各自提交。
func (s *Service) Create(ctx context.Context, in CreateInput) (*RouteAssignment, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	span, ctx := tracing.StartSpan(ctx, "assignment.Create")
	defer span.Finish()

	in.VehicleID = strings.TrimSpace(in.VehicleID)
	in.DriverID = strings.TrimSpace(in.DriverID)
	if in.VehicleID == "" || in.DriverID == "" {
		return nil, apperr.Validation("vehicle_id and driver_id required")
	}
	if in.StartsAt.IsZero() {
		return nil, apperr.Validation("starts_at required")
	}
	v, err := s.vehicles.FindByID(ctx, in.VehicleID)
	if err != nil {
		return nil, err
	}
	if v.State == vehicle.StateInactive {
		return nil, apperr.Validation("vehicle %s is inactive", v.ID)
	}
	if err := s.users.Exists(ctx, in.DriverID); err != nil {
		return nil, err
	}

	a := &RouteAssignment{
		ID:              uuid.NewString(),
		VehicleID:       in.VehicleID,
		DriverID:        in.DriverID,
		RouteTemplateID: strings.TrimSpace(in.RouteTemplateID),
		Status:          StatusPending,
		StartsAt:        in.StartsAt,
		EndsAt:          in.EndsAt,
		StartOdometer:   in.StartOdometer,
		Notes:           strings.TrimSpace(in.Notes),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.validateInTx(ctx, tx, a.VehicleID, a.DriverID, a.StartsAt, a.EndsAt, ""); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, a); err != nil {
			return apperr.FromDB(err, "failed to create assignment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, notify.Event{
		EntityType: "assignment", EntityID: a.ID, NewState: string(a.Status),
	})
	return a, nil
}

// UpdateWindow 调整排班时间窗。重新做冲突检测，排除自身。
func (s *Service) UpdateWindow(ctx context.Context, id string, start time.Time, end *time.Time) (*RouteAssignment, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}

	var out *RouteAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.repo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if a.Status.Terminal() {
			return apperr.InvalidTransition("assignment %s is %s and cannot be rescheduled", id, a.Status)
		}
		if err := s.validateInTx(ctx, tx, a.VehicleID, a.DriverID, start, end, a.ID); err != nil {
			return err
		}
		a.StartsAt = start
		a.EndsAt = end
		if err := s.repo.Update(ctx, tx, a); err != nil {
			return apperr.FromDB(err, "failed to update assignment %s", id)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, notify.Event{
		EntityType: "assignment", EntityID: out.ID, NewState: string(out.Status),
	})
	return out, nil
}

// Transition 排班状态流转（assign / start / cancel）。收车走 Complete。
func (s *Service) Transition(ctx context.Context, id string, target Status) (*RouteAssignment, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	if !target.Valid() {
		return nil, apperr.Validation("unknown assignment status %q", target)
	}
	if target == StatusCompleted {
		return nil, apperr.Validation("use Complete to finish an assignment")
	}

	var out *RouteAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.repo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !canTransition(a.Status, target) {
			return apperr.InvalidTransition("assignment %s: %s -> %s is not allowed", id, a.Status, target)
		}
		a.Status = target
		if err := s.repo.Update(ctx, tx, a); err != nil {
			return apperr.FromDB(err, "failed to update assignment %s", id)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, notify.Event{
		EntityType: "assignment", EntityID: out.ID, NewState: string(out.Status),
	})
	return out, nil
}

// Complete 收车：in_progress -> completed。
// endOdometer 缺省且 autoOdometer 为 true 时取车辆当前里程；
// 终值回写车辆里程，单调推进，绝不回退。
func (s *Service) Complete(ctx context.Context, id string, endOdometer *int64, autoOdometer bool) (*RouteAssignment, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	span, ctx := tracing.StartSpan(ctx, "assignment.Complete")
	defer span.Finish()

	var out *RouteAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := s.repo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !canTransition(a.Status, StatusCompleted) {
			return apperr.InvalidTransition("assignment %s: %s -> %s is not allowed", id, a.Status, StatusCompleted)
		}

		v, err := s.vehicles.FindByIDForUpdate(ctx, tx, a.VehicleID)
		if err != nil {
			return err
		}

		final := endOdometer
		if final == nil {
			if !autoOdometer {
				return apperr.Validation("end odometer required unless auto completion is requested")
			}
			cur := v.Odometer
			final = &cur
		}
		if *final < a.StartOdometer {
			return apperr.Validation("end odometer %d is below start odometer %d", *final, a.StartOdometer)
		}

		now := s.now()
		if a.EndsAt == nil {
			a.EndsAt = &now
		}
		if !a.EndsAt.After(a.StartsAt) {
			return apperr.Validation("assignment end must be after start")
		}

		a.Status = StatusCompleted
		a.EndOdometer = final
		if err := s.repo.Update(ctx, tx, a); err != nil {
			return apperr.FromDB(err, "failed to update assignment %s", id)
		}
		// 回写车辆里程（单调）
		if err := s.vehicles.AdvanceOdometer(ctx, tx, a.VehicleID, *final); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, notify.Event{
		EntityType: "assignment", EntityID: out.ID, NewState: string(StatusCompleted),
	})
	return out, nil
}
