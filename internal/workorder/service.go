package workorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/logger"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/tracing"
	"github.com/SmartFleetOps/SmartFleetOps/internal/metrics"
	"github.com/SmartFleetOps/SmartFleetOps/internal/notify"
	"github.com/SmartFleetOps/SmartFleetOps/internal/plan"
	"github.com/SmartFleetOps/SmartFleetOps/internal/user"
	"github.com/SmartFleetOps/SmartFleetOps/internal/vehicle"
)

// Service 工单领域的核心用例：状态机流转、清单项完成、计划生成（见 generator.go）。
// 所有依赖显式注入，不存在包级全局状态。
type Service struct {
	db       *gorm.DB
	repo     *Repo
	vehicles *vehicle.Repo
	users    *user.Repo
	plans    *plan.Repo
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      logger.Logger

	now func() time.Time
}

func NewService(db *gorm.DB, repo *Repo, vehicles *vehicle.Repo, users *user.Repo, plans *plan.Repo, notifier notify.Notifier, m *metrics.Metrics, log logger.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		vehicles: vehicles,
		users:    users,
		plans:    plans,
		notifier: notifier,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// TransitionResult 状态流转的返回值。
type TransitionResult struct {
	Previous Status
	New      Status
}

// Transition 按状态机规则流转工单，并维护车辆状态副作用。
// 这是 status 字段唯一的写入路径。整个读-判-写在一个事务内完成。
func (s *Service) Transition(ctx context.Context, orderID string, target Status, actorID, reason string) (*TransitionResult, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	span, ctx := tracing.StartSpan(ctx, "workorder.Transition")
	defer span.Finish()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperr.Validation("order id required")
	}
	if !target.Valid() {
		return nil, apperr.Validation("unknown work order status %q", target)
	}
	reason = strings.TrimSpace(reason)
	if target == StatusRejected && reason == "" {
		return nil, apperr.Validation("rejection requires a non-empty reason")
	}
	if actorID != "" {
		if err := s.users.Exists(ctx, actorID); err != nil {
			return nil, err
		}
	}

	var result *TransitionResult
	var events []notify.Event

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		o, err := s.repo.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		previous := o.Status

		if !CanTransition(previous, target) {
			return apperr.InvalidTransition("work order %s: %s -> %s is not allowed", orderID, previous, target)
		}

		switch target {
		case StatusInProgress:
			v, err := s.vehicles.FindByIDForUpdate(ctx, tx, o.VehicleID)
			if err != nil {
				return err
			}
			if v.State == vehicle.StateInMaintenance {
				return apperr.VehicleUnavailable("vehicle %s is already in maintenance", v.ID)
			}
			if v.State == vehicle.StateInactive {
				return apperr.VehicleUnavailable("vehicle %s is inactive", v.ID)
			}
			if err := s.vehicles.SetState(ctx, tx, v.ID, vehicle.StateInMaintenance); err != nil {
				return err
			}
			if o.AssigneeID == nil && actorID != "" {
				a := actorID
				o.AssigneeID = &a
			}
			events = append(events, notify.Event{
				EntityType: "vehicle", EntityID: v.ID, NewState: string(vehicle.StateInMaintenance),
			})

		case StatusCompleted:
			now := s.now()
			o.CompletedAt = &now
			if err := s.vehicles.SetState(ctx, tx, o.VehicleID, vehicle.StateActive); err != nil {
				return err
			}
			events = append(events, notify.Event{
				EntityType: "vehicle", EntityID: o.VehicleID, NewState: string(vehicle.StateActive),
			})

		case StatusRejected, StatusCancelled:
			if target == StatusRejected {
				o.Description = appendReason(o.Description, reason)
			}
			// 车辆已被本单占用时要还回去
			if previous == StatusInProgress {
				if err := s.vehicles.SetState(ctx, tx, o.VehicleID, vehicle.StateActive); err != nil {
					return err
				}
				events = append(events, notify.Event{
					EntityType: "vehicle", EntityID: o.VehicleID, NewState: string(vehicle.StateActive),
				})
			}
		}

		o.Status = target
		if err := s.repo.Update(ctx, tx, o); err != nil {
			return apperr.FromDB(err, "failed to update work order %s", orderID)
		}

		result = &TransitionResult{Previous: previous, New: target}
		events = append(events, notify.Event{
			EntityType: "work_order", EntityID: o.ID, NewState: string(target),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transitions.WithLabelValues(string(result.Previous), string(result.New)).Inc()
	// 事务提交后再发事件；发布失败不影响已提交的流转
	for _, e := range events {
		s.notifier.Publish(ctx, e)
	}
	return result, nil
}

// appendReason 把驳回原因追加到描述后面，不覆盖原始描述。
func appendReason(description, reason string) string {
	if description == "" {
		return "Rejection reason: " + reason
	}
	return description + "\nRejection reason: " + reason
}

// StartTask 记录清单项的开工时间。重复开工保持首次时间不变。
func (s *Service) StartTask(ctx context.Context, taskID, actorID string) (*WorkOrderTask, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.StartedAt == nil {
		now := s.now()
		t.StartedAt = &now
	}
	if actorID != "" {
		a := actorID
		t.AssigneeID = &a
	}
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return nil, apperr.FromDB(err, "failed to update task %s", taskID)
	}
	return t, nil
}

// SetTaskCompletion 修改清单项完成标记并维护耗时：
// false -> true 且有开工时间时计算 DurationMinutes；true -> false 时清空完成态字段。
func (s *Service) SetTaskCompletion(ctx context.Context, taskID string, completed bool, actorID string) (*WorkOrderTask, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("service not initialized")
	}
	t, err := s.repo.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Completed == completed {
		return t, nil
	}

	if completed {
		now := s.now()
		t.Completed = true
		t.FinishedAt = &now
		if t.StartedAt != nil {
			minutes := int64(now.Sub(*t.StartedAt) / time.Minute)
			t.DurationMinutes = &minutes
		}
		if actorID != "" {
			a := actorID
			t.AssigneeID = &a
		}
	} else {
		t.Completed = false
		t.FinishedAt = nil
		t.DurationMinutes = nil
	}

	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return nil, apperr.FromDB(err, "failed to update task %s", taskID)
	}
	return t, nil
}
