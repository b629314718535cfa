package vehicle

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/db"
)

// Repo 车辆档案访问器，供工单、排班与调度器使用。
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

func (r *Repo) Create(ctx context.Context, v *Vehicle) error {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return fmt.Errorf("repo db is nil")
	}
	if !v.State.Valid() {
		return apperr.Validation("unknown vehicle state %q", v.State)
	}
	return gdb.Create(v).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Vehicle, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := gdb.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, apperr.FromDB(err, "vehicle %s not found", id)
	}
	return &v, nil
}

// FindByIDForUpdate 带行锁读取，供工单流转 / 排班事务内使用。
// 注意：必须在事务中的 tx 上调用。
func (r *Repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*Vehicle, error) {
	var v Vehicle
	if err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, apperr.FromDB(err, "vehicle %s not found", id)
	}
	return &v, nil
}

// SetState 更新车辆运行状态。tx 可传 nil，表示不在外部事务中。
func (r *Repo) SetState(ctx context.Context, tx *gorm.DB, id string, state State) error {
	if !state.Valid() {
		return apperr.Validation("unknown vehicle state %q", state)
	}
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}
	res := gdb.WithContext(ctx).Model(&Vehicle{}).Where("id = ?", id).Update("state", state)
	if res.Error != nil {
		return apperr.FromDB(res.Error, "failed to update vehicle %s state", id)
	}
	if res.RowsAffected == 0 {
		// MySQL 对无变化的 UPDATE 也报 0 行，需要区分“不存在”和“值未变”
		var n int64
		if err := gdb.WithContext(ctx).Model(&Vehicle{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return apperr.FromDB(err, "failed to check vehicle %s", id)
		}
		if n == 0 {
			return apperr.NotFound("vehicle %s not found", id)
		}
	}
	return nil
}

// AdvanceOdometer 单调推进里程：只有新值大于当前值才写入，绝不回退。
// 新值不大于当前值不算错误（并发上报迟到的旧读数属正常情况）。
func (r *Repo) AdvanceOdometer(ctx context.Context, tx *gorm.DB, id string, odometer int64) error {
	if odometer < 0 {
		return apperr.Validation("odometer must be non-negative, got %d", odometer)
	}
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}
	res := gdb.WithContext(ctx).Model(&Vehicle{}).
		Where("id = ? AND odometer < ?", id, odometer).
		Update("odometer", odometer)
	if res.Error != nil {
		return apperr.FromDB(res.Error, "failed to advance vehicle %s odometer", id)
	}
	return nil
}

// List 按状态过滤 + 分页。
func (r *Repo) List(ctx context.Context, state State, offset, limit int) ([]Vehicle, int64, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := gdb.Model(&Vehicle{})
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var vehicles []Vehicle
	if err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}
