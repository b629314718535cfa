package workorder

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/db"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(gdb *gorm.DB) *Repo {
	return &Repo{db: gdb}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// Create 在事务 tx 中插入工单及其清单项。
func (r *Repo) Create(ctx context.Context, tx *gorm.DB, o *WorkOrder) error {
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}
	// gorm 级联插入 Tasks
	return gdb.WithContext(ctx).Create(o).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*WorkOrder, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var o WorkOrder
	if err := gdb.Where("id = ?", id).First(&o).Error; err != nil {
		return nil, apperr.FromDB(err, "work order %s not found", id)
	}
	return &o, nil
}

// GetByIDForUpdate 带行锁读取，状态流转事务内使用。
func (r *Repo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*WorkOrder, error) {
	var o WorkOrder
	if err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&o).Error; err != nil {
		return nil, apperr.FromDB(err, "work order %s not found", id)
	}
	return &o, nil
}

// GetWithTasks 读取工单与其有序清单。
func (r *Repo) GetWithTasks(ctx context.Context, id string) (*WorkOrder, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var o WorkOrder
	err := gdb.Preload("Tasks", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position asc")
	}).Where("id = ?", id).First(&o).Error
	if err != nil {
		return nil, apperr.FromDB(err, "work order %s not found", id)
	}
	return &o, nil
}

// Update 保存工单。tx 可为 nil。
func (r *Repo) Update(ctx context.Context, tx *gorm.DB, o *WorkOrder) error {
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}
	return gdb.WithContext(ctx).Save(o).Error
}

// FindOpenByPlanVehicle 查找 (plan, vehicle) 下仍然开放的计划工单。
// 开放 = 非终态（not_started / in_progress）。调度器据此保证不重复生成。
// 不存在时返回 (nil, nil)。
func (r *Repo) FindOpenByPlanVehicle(ctx context.Context, tx *gorm.DB, planID, vehicleID string) (*WorkOrder, error) {
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}
	var o WorkOrder
	err := gdb.WithContext(ctx).
		Where("plan_id = ? AND vehicle_id = ? AND status IN ?",
			planID, vehicleID, []Status{StatusNotStarted, StatusInProgress}).
		First(&o).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repo) GetTask(ctx context.Context, id string) (*WorkOrderTask, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var t WorkOrderTask
	if err := gdb.Where("id = ?", id).First(&t).Error; err != nil {
		return nil, apperr.FromDB(err, "work order task %s not found", id)
	}
	return &t, nil
}

func (r *Repo) UpdateTask(ctx context.Context, t *WorkOrderTask) error {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return fmt.Errorf("repo db is nil")
	}
	return gdb.Save(t).Error
}

// CountTasks 工单下的清单项数量，测试与对账用。
func (r *Repo) CountTasks(ctx context.Context, workOrderID string) (int64, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return 0, fmt.Errorf("repo db is nil")
	}
	var n int64
	err := gdb.Model(&WorkOrderTask{}).Where("work_order_id = ?", workOrderID).Count(&n).Error
	return n, err
}
