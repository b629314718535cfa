package assignment

import (
	"context"
	"fmt"
	"time"

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

func (r *Repo) Create(ctx context.Context, tx *gorm.DB, a *RouteAssignment) error {
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}
	return gdb.WithContext(ctx).Create(a).Error
}

func (r *Repo) GetByID(ctx context.Context, id string) (*RouteAssignment, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var a RouteAssignment
	if err := gdb.Where("id = ?", id).First(&a).Error; err != nil {
		return nil, apperr.FromDB(err, "assignment %s not found", id)
	}
	return &a, nil
}

func (r *Repo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*RouteAssignment, error) {
	var a RouteAssignment
	if err := db.ForUpdate(tx.WithContext(ctx)).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, apperr.FromDB(err, "assignment %s not found", id)
	}
	return &a, nil
}

func (r *Repo) Update(ctx context.Context, tx *gorm.DB, a *RouteAssignment) error {
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}
	return gdb.WithContext(ctx).Save(a).Error
}

// conflictScope 冲突检测的维度：按车辆或按司机。
type conflictScope string

const (
	scopeVehicle conflictScope = "vehicle_id"
	scopeDriver  conflictScope = "driver_id"
)

// FindFirstConflict 查找与 [start, end) 相交的第一条非终态排班。
// 区间相交判定：a1 < b2 AND b1 < a2，end 为空按 +∞ 处理。
// 带行锁读取候选行，封住两个并发请求同时通过检测的竞态。
// 无冲突时返回 (nil, nil)。
func (r *Repo) FindFirstConflict(ctx context.Context, tx *gorm.DB, scope conflictScope, scopeID string, start time.Time, end *time.Time, excludeID string) (*RouteAssignment, error) {
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}

	q := db.ForUpdate(gdb.WithContext(ctx)).
		Where(fmt.Sprintf("%s = ?", scope), scopeID).
		Where("status IN ?", nonTerminalStatuses).
		// 已有排班的结束时间晚于新窗口的开始（NULL 即无界）
		Where("ends_at IS NULL OR ends_at > ?", start)
	if end != nil {
		// 已有排班的开始时间早于新窗口的结束；新窗口无界时不加此条件
		q = q.Where("starts_at < ?", *end)
	}
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}

	var a RouteAssignment
	if err := q.Order("starts_at asc").First(&a).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListByVehicle 车辆的排班列表，按开始时间倒序 + 分页。
func (r *Repo) ListByVehicle(ctx context.Context, vehicleID string, offset, limit int) ([]RouteAssignment, int64, error) {
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

	q := gdb.Model(&RouteAssignment{}).Where("vehicle_id = ?", vehicleID)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []RouteAssignment
	if err := q.Order("starts_at desc").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
