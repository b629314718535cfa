package workorder

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/plan"
	"github.com/SmartFleetOps/SmartFleetOps/internal/vehicle"
)

func TestGenerateCreatesOrderWithTasks(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()

	v := seedVehicle(t, gdb, vehicle.StateActive, 50000)
	u := seedUser(t, gdb)
	p := seedPlan(t, gdb, plan.UnitDistance, 10000, "change oil", "rotate tires", "check brakes")
	seedLink(t, gdb, v.ID, p.ID)

	orderID, err := svc.Generate(ctx, p.ID, v.ID, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, orderID)

	o, err := svc.repo.GetWithTasks(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, StatusNotStarted, o.Status)
	require.EqualValues(t, 50000, o.Odometer)
	require.Equal(t, v.ID, o.VehicleID)
	require.Equal(t, u.ID, o.RequesterID)
	require.NotNil(t, o.PlanID)
	require.Equal(t, p.ID, *o.PlanID)
	require.Contains(t, o.Description, p.Description)

	require.Len(t, o.Tasks, 3)
	require.Equal(t, "change oil", o.Tasks[0].Description)
	require.Equal(t, "rotate tires", o.Tasks[1].Description)
	require.Equal(t, "check brakes", o.Tasks[2].Description)
	for _, task := range o.Tasks {
		require.False(t, task.Completed)
	}
}

func TestGenerateSnapshotsCommittedOdometer(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()

	v := seedVehicle(t, gdb, vehicle.StateActive, 50000)
	u := seedUser(t, gdb)
	p := seedPlan(t, gdb, plan.UnitDistance, 10000, "change oil")
	seedLink(t, gdb, v.ID, p.ID)

	// 建档之后又有里程上报：工单落的必须是库里已提交的值
	require.NoError(t, gdb.Model(&vehicle.Vehicle{}).Where("id = ?", v.ID).Update("odometer", 50750).Error)

	orderID, err := svc.Generate(ctx, p.ID, v.ID, u.ID)
	require.NoError(t, err)

	o, err := svc.repo.GetByID(ctx, orderID)
	require.NoError(t, err)
	require.EqualValues(t, 50750, o.Odometer)
}

func TestGenerateValidations(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()

	v := seedVehicle(t, gdb, vehicle.StateActive, 0)
	u := seedUser(t, gdb)
	p := seedPlan(t, gdb, plan.UnitDistance, 10000, "change oil")

	// 计划不存在
	_, err := svc.Generate(ctx, uuid.NewString(), v.ID, u.ID)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// 发起人不存在
	_, err = svc.Generate(ctx, p.ID, v.ID, uuid.NewString())
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// 车辆不存在
	_, err = svc.Generate(ctx, p.ID, uuid.NewString(), u.ID)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// (plan, vehicle) 没有挂接
	_, err = svc.Generate(ctx, p.ID, v.ID, u.ID)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	// 空计划
	empty := seedPlan(t, gdb, plan.UnitDistance, 10000)
	seedLink(t, gdb, v.ID, empty.ID)
	_, err = svc.Generate(ctx, empty.ID, v.ID, u.ID)
	require.Equal(t, apperr.KindEmptyPlan, apperr.KindOf(err))
}

func TestGenerateRollsBackAsAWhole(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()

	v := seedVehicle(t, gdb, vehicle.StateActive, 0)
	u := seedUser(t, gdb)
	p := seedPlan(t, gdb, plan.UnitDistance, 10000, "change oil", "rotate tires", "check brakes")
	link := seedLink(t, gdb, v.ID, p.ID)

	// 工单和清单插入之后让事务失败：不允许留下任何半成品
	boom := errors.New("boom")
	pLoaded, err := svc.plans.GetWithTasks(ctx, p.ID)
	require.NoError(t, err)
	err = gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.GenerateInTx(ctx, tx, pLoaded, v, link, u.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var orders, tasks int64
	require.NoError(t, gdb.Model(&WorkOrder{}).Count(&orders).Error)
	require.NoError(t, gdb.Model(&WorkOrderTask{}).Count(&tasks).Error)
	require.Zero(t, orders)
	require.Zero(t, tasks)
}

func TestGenerateBulkPartialFailure(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()

	u := seedUser(t, gdb)
	p := seedPlan(t, gdb, plan.UnitDistance, 10000, "change oil")

	linked := seedVehicle(t, gdb, vehicle.StateActive, 1000)
	seedLink(t, gdb, linked.ID, p.ID)
	unlinked := seedVehicle(t, gdb, vehicle.StateActive, 2000)

	results, err := svc.GenerateBulk(ctx, p.ID, []string{linked.ID, unlinked.ID}, u.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Equal(t, linked.ID, results[0].VehicleID)
	require.Empty(t, results[0].Err)
	require.NotEmpty(t, results[0].WorkOrderID)

	require.Equal(t, unlinked.ID, results[1].VehicleID)
	require.NotEmpty(t, results[1].Err)
	require.Empty(t, results[1].WorkOrderID)

	// 成功的那台车被置为保养中；失败的那台不受影响
	vGot, err := svc.vehicles.FindByID(ctx, linked.ID)
	require.NoError(t, err)
	require.Equal(t, vehicle.StateInMaintenance, vGot.State)

	vGot, err = svc.vehicles.FindByID(ctx, unlinked.ID)
	require.NoError(t, err)
	require.Equal(t, vehicle.StateActive, vGot.State)

	// 失败项不留下工单
	var orders int64
	require.NoError(t, gdb.Model(&WorkOrder{}).Where("vehicle_id = ?", unlinked.ID).Count(&orders).Error)
	require.Zero(t, orders)
}

func TestGenerateBulkPlanValidatedOnce(t *testing.T) {
	svc, gdb, _ := newTestEnv(t)
	ctx := context.Background()

	u := seedUser(t, gdb)
	v := seedVehicle(t, gdb, vehicle.StateActive, 0)

	// 空计划在批量入口整体失败，而不是逐台报错
	empty := seedPlan(t, gdb, plan.UnitDistance, 10000)
	seedLink(t, gdb, v.ID, empty.ID)
	_, err := svc.GenerateBulk(ctx, empty.ID, []string{v.ID}, u.ID)
	require.Equal(t, apperr.KindEmptyPlan, apperr.KindOf(err))

	_, err = svc.GenerateBulk(ctx, empty.ID, nil, u.ID)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
