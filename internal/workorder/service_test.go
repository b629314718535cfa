package workorder

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/logger"
	"github.com/SmartFleetOps/SmartFleetOps/internal/metrics"
	"github.com/SmartFleetOps/SmartFleetOps/internal/notify"
	"github.com/SmartFleetOps/SmartFleetOps/internal/plan"
	"github.com/SmartFleetOps/SmartFleetOps/internal/testutil"
	"github.com/SmartFleetOps/SmartFleetOps/internal/user"
	"github.com/SmartFleetOps/SmartFleetOps/internal/vehicle"
)

func newTestEnv(t *testing.T) (*Service, *gorm.DB, *notify.Recorder) {
	t.Helper()
	gdb := testutil.OpenDB(t,
		&vehicle.Vehicle{},
		&user.User{},
		&plan.MaintenancePlan{},
		&plan.PlanTask{},
		&plan.VehiclePlanLink{},
		&WorkOrder{},
		&WorkOrderTask{},
	)
	rec := &notify.Recorder{}
	svc := NewService(
		gdb,
		NewRepo(gdb),
		vehicle.NewRepo(gdb),
		user.NewRepo(gdb),
		plan.NewRepo(gdb),
		rec,
		metrics.NewNop(),
		logger.NewNop(),
	)
	return svc, gdb, rec
}

func seedVehicle(t *testing.T, gdb *gorm.DB, state vehicle.State, odometer int64) *vehicle.Vehicle {
	t.Helper()
	v := &vehicle.Vehicle{
		ID:          uuid.NewString(),
		PlateNumber: "T-" + uuid.NewString()[:8],
		State:       state,
		Odometer:    odometer,
	}
	require.NoError(t, gdb.Create(v).Error)
	return v
}

func seedUser(t *testing.T, gdb *gorm.DB) *user.User {
	t.Helper()
	u := &user.User{ID: uuid.NewString(), Username: "u-" + uuid.NewString()[:8]}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

func seedPlan(t *testing.T, gdb *gorm.DB, unit plan.RecurrenceUnit, amount int64, taskNames ...string) *plan.MaintenancePlan {
	t.Helper()
	p := &plan.MaintenancePlan{
		ID:               uuid.NewString(),
		Description:      "10k km service",
		RecurrenceAmount: amount,
		RecurrenceUnit:   unit,
		Active:           true,
		Preventive:       true,
	}
	for i, name := range taskNames {
		p.Tasks = append(p.Tasks, plan.PlanTask{
			ID:       uuid.NewString(),
			PlanID:   p.ID,
			Name:     name,
			Position: i,
		})
	}
	require.NoError(t, gdb.Create(p).Error)
	return p
}

func seedLink(t *testing.T, gdb *gorm.DB, vehicleID, planID string) *plan.VehiclePlanLink {
	t.Helper()
	link := &plan.VehiclePlanLink{ID: uuid.NewString(), VehicleID: vehicleID, PlanID: planID}
	require.NoError(t, gdb.Create(link).Error)
	return link
}

func seedOrder(t *testing.T, gdb *gorm.DB, vehicleID, requesterID string, status Status) *WorkOrder {
	t.Helper()
	o := &WorkOrder{
		ID:          uuid.NewString(),
		VehicleID:   vehicleID,
		RequesterID: requesterID,
		Status:      status,
		Description: "brake inspection",
	}
	require.NoError(t, gdb.Create(o).Error)
	return o
}

func TestTransitionLifecycle(t *testing.T) {
	svc, gdb, rec := newTestEnv(t)
	ctx := context.Background()

	v := seedVehicle(t, gdb, vehicle.StateActive, 50000)
	u := seedUser(t, gdb)
	o := seedOrder(t, gdb, v.ID, u.ID, StatusNotStarted)

	res, err := svc.Transition(ctx, o.ID, StatusInProgress, u.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusNotStarted, res.Previous)
	require.Equal(t, StatusInProgress, res.New)

	got, err := svc.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, got.Status)
	require.NotNil(t, got.AssigneeID)
	require.Equal(t, u.ID, *got.AssigneeID)

	vGot, err := svc.vehicles.FindByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, vehicle.StateInMaintenance, vGot.State)

	res, err = svc.Transition(ctx, o.ID, StatusCompleted, u.ID, "")
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, res.Previous)

	got, err = svc.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	vGot, err = svc.vehicles.FindByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, vehicle.StateActive, vGot.State)

	// 工单两次流转 + 车辆两次状态变化
	require.Len(t, rec.Events(), 4)
}

func TestTransitionVehicleGuards(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()
	u := seedUser(t, gdb)

	busy := seedVehicle(t, gdb, vehicle.StateInMaintenance, 0)
	o1 := seedOrder(t, gdb, busy.ID, u.ID, StatusNotStarted)
	_, err := svc.Transition(ctx, o1.ID, StatusInProgress, u.ID, "")
	require.Equal(t, apperr.KindVehicleUnavailable, apperr.KindOf(err))

	inactive := seedVehicle(t, gdb, vehicle.StateInactive, 0)
	o2 := seedOrder(t, gdb, inactive.ID, u.ID, StatusNotStarted)
	_, err = svc.Transition(ctx, o2.ID, StatusInProgress, u.ID, "")
	require.Equal(t, apperr.KindVehicleUnavailable, apperr.KindOf(err))

	// 守卫失败不得改动工单状态
	got, err := svc.repo.GetByID(ctx, o1.ID)
	require.NoError(t, err)
	require.Equal(t, StatusNotStarted, got.Status)
}

func TestTransitionInvalid(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()
	v := seedVehicle(t, gdb, vehicle.StateActive, 0)
	u := seedUser(t, gdb)

	o := seedOrder(t, gdb, v.ID, u.ID, StatusNotStarted)

	// not_started 不能直达 completed
	_, err := svc.Transition(ctx, o.ID, StatusCompleted, u.ID, "")
	require.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))

	// 未知目标状态
	_, err = svc.Transition(ctx, o.ID, Status("serving"), u.ID, "")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// 工单不存在
	_, err = svc.Transition(ctx, uuid.NewString(), StatusInProgress, u.ID, "")
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// 终态不再流转
	done := seedOrder(t, gdb, v.ID, u.ID, StatusCompleted)
	_, err = svc.Transition(ctx, done.ID, StatusCancelled, u.ID, "")
	require.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestRejection(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()
	v := seedVehicle(t, gdb, vehicle.StateActive, 0)
	u := seedUser(t, gdb)

	o := seedOrder(t, gdb, v.ID, u.ID, StatusNotStarted)

	// 空原因驳回
	_, err := svc.Transition(ctx, o.ID, StatusRejected, u.ID, "  ")
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// 正常驳回：原因追加而不是覆盖
	res, err := svc.Transition(ctx, o.ID, StatusRejected, u.ID, "duplicate request")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, res.New)

	got, err := svc.repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Contains(t, got.Description, "brake inspection")
	require.Contains(t, got.Description, "duplicate request")

	// in_progress 不可驳回
	o2 := seedOrder(t, gdb, v.ID, u.ID, StatusInProgress)
	_, err = svc.Transition(ctx, o2.ID, StatusRejected, u.ID, "late")
	require.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
}

func TestCancelRestoresVehicle(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()
	v := seedVehicle(t, gdb, vehicle.StateActive, 0)
	u := seedUser(t, gdb)
	o := seedOrder(t, gdb, v.ID, u.ID, StatusNotStarted)

	_, err := svc.Transition(ctx, o.ID, StatusInProgress, u.ID, "")
	require.NoError(t, err)

	_, err = svc.Transition(ctx, o.ID, StatusCancelled, u.ID, "")
	require.NoError(t, err)

	vGot, err := svc.vehicles.FindByID(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, vehicle.StateActive, vGot.State)
}

func TestTaskCompletionDuration(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()
	v := seedVehicle(t, gdb, vehicle.StateActive, 0)
	u := seedUser(t, gdb)
	o := seedOrder(t, gdb, v.ID, u.ID, StatusInProgress)

	task := &WorkOrderTask{
		ID:          uuid.NewString(),
		WorkOrderID: o.ID,
		Description: "replace oil filter",
	}
	require.NoError(t, gdb.Create(task).Error)

	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	_, err := svc.StartTask(ctx, task.ID, u.ID)
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(45 * time.Minute) }
	got, err := svc.SetTaskCompletion(ctx, task.ID, true, u.ID)
	require.NoError(t, err)
	require.True(t, got.Completed)
	require.NotNil(t, got.FinishedAt)
	require.NotNil(t, got.DurationMinutes)
	require.EqualValues(t, 45, *got.DurationMinutes)

	// 反向流转清空完成态字段
	got, err = svc.SetTaskCompletion(ctx, task.ID, false, u.ID)
	require.NoError(t, err)
	require.False(t, got.Completed)
	require.Nil(t, got.FinishedAt)
	require.Nil(t, got.DurationMinutes)

	// 没有开工时间时完成不计耗时
	task2 := &WorkOrderTask{ID: uuid.NewString(), WorkOrderID: o.ID, Description: "topup coolant"}
	require.NoError(t, gdb.Create(task2).Error)
	got, err = svc.SetTaskCompletion(ctx, task2.ID, true, u.ID)
	require.NoError(t, err)
	require.True(t, got.Completed)
	require.Nil(t, got.DurationMinutes)
}
