package plan

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/apperr"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/db"
	"github.com/SmartFleetOps/SmartFleetOps/internal/vehicle"
)

// Repo 保养计划访问器，供工单生成与调度器使用。
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

// CreateWithTasks 原子创建计划及其任务模板。
func (r *Repo) CreateWithTasks(ctx context.Context, p *MaintenancePlan) error {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return fmt.Errorf("repo db is nil")
	}
	// gorm 会在同一事务里级联插入 Tasks
	return gdb.Create(p).Error
}

// GetWithTasks 读取计划与其有序任务清单。
func (r *Repo) GetWithTasks(ctx context.Context, id string) (*MaintenancePlan, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p MaintenancePlan
	err := gdb.Preload("Tasks", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position asc")
	}).Where("id = ?", id).First(&p).Error
	if err != nil {
		return nil, apperr.FromDB(err, "plan %s not found", id)
	}
	return &p, nil
}

func (r *Repo) CreateLink(ctx context.Context, link *VehiclePlanLink) error {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return fmt.Errorf("repo db is nil")
	}
	return gdb.Create(link).Error
}

// GetLink 读取 (vehicle, plan) 的到期跟踪记录。
func (r *Repo) GetLink(ctx context.Context, vehicleID, planID string) (*VehiclePlanLink, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var link VehiclePlanLink
	err := gdb.Where("vehicle_id = ? AND plan_id = ?", vehicleID, planID).First(&link).Error
	if err != nil {
		return nil, apperr.FromDB(err, "vehicle %s is not linked to plan %s", vehicleID, planID)
	}
	return &link, nil
}

// GetLinkForUpdate 带行锁读取，调度器推进到期记录时在事务内使用。
func (r *Repo) GetLinkForUpdate(ctx context.Context, tx *gorm.DB, vehicleID, planID string) (*VehiclePlanLink, error) {
	var link VehiclePlanLink
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("vehicle_id = ? AND plan_id = ?", vehicleID, planID).First(&link).Error
	if err != nil {
		return nil, apperr.FromDB(err, "vehicle %s is not linked to plan %s", vehicleID, planID)
	}
	return &link, nil
}

// UpdateLink 保存到期跟踪记录。tx 可为 nil。
func (r *Repo) UpdateLink(ctx context.Context, tx *gorm.DB, link *VehiclePlanLink) error {
	gdb := tx
	if gdb == nil {
		gdb = r.db
	}
	return gdb.WithContext(ctx).Save(link).Error
}

// ActiveLink 调度器扫描用的联结视图：到期记录 + 生效计划 + 车辆。
type ActiveLink struct {
	Link    VehiclePlanLink
	Plan    MaintenancePlan
	Vehicle vehicle.Vehicle
}

// ListActiveLinks 加载所有挂在生效计划上的到期跟踪记录，并带出计划与车辆。
func (r *Repo) ListActiveLinks(ctx context.Context) ([]ActiveLink, error) {
	gdb := r.withCtx(ctx)
	if gdb == nil {
		return nil, fmt.Errorf("repo db is nil")
	}

	var links []VehiclePlanLink
	err := gdb.
		Joins("JOIN maintenance_plans ON maintenance_plans.id = vehicle_plan_links.plan_id AND maintenance_plans.active = ?", true).
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	planIDs := make([]string, 0, len(links))
	vehicleIDs := make([]string, 0, len(links))
	for _, l := range links {
		planIDs = append(planIDs, l.PlanID)
		vehicleIDs = append(vehicleIDs, l.VehicleID)
	}

	var plans []MaintenancePlan
	if err := gdb.Preload("Tasks", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position asc")
	}).Where("id IN ?", planIDs).Find(&plans).Error; err != nil {
		return nil, err
	}
	planByID := make(map[string]MaintenancePlan, len(plans))
	for _, p := range plans {
		planByID[p.ID] = p
	}

	var vehicles []vehicle.Vehicle
	if err := gdb.Where("id IN ?", vehicleIDs).Find(&vehicles).Error; err != nil {
		return nil, err
	}
	vehicleByID := make(map[string]vehicle.Vehicle, len(vehicles))
	for _, v := range vehicles {
		vehicleByID[v.ID] = v
	}

	out := make([]ActiveLink, 0, len(links))
	for _, l := range links {
		p, okP := planByID[l.PlanID]
		v, okV := vehicleByID[l.VehicleID]
		if !okP || !okV {
			// 计划或车辆被外部删除时跳过该条记录，不影响其它记录
			continue
		}
		out = append(out, ActiveLink{Link: l, Plan: p, Vehicle: v})
	}
	return out, nil
}
