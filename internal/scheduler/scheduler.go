package scheduler

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/SmartFleetOps/SmartFleetOps/internal/common/discovery"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/logger"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/tracing"
	"github.com/SmartFleetOps/SmartFleetOps/internal/metrics"
	"github.com/SmartFleetOps/SmartFleetOps/internal/notify"
	"github.com/SmartFleetOps/SmartFleetOps/internal/plan"
	"github.com/SmartFleetOps/SmartFleetOps/internal/vehicle"
	"github.com/SmartFleetOps/SmartFleetOps/internal/workorder"
)

// Scheduler 保养到期调度器：周期性扫描所有 (vehicle, plan) 到期记录，
// 到期且无开放工单时生成工单并推进到期记录。
// 单 goroutine 顺序执行，下一轮永远等上一轮跑完；多副本部署时
// 通过 RunnerLock 保证同一时刻只有一个副本在扫描。
type Scheduler struct {
	db        *gorm.DB
	plans     *plan.Repo
	orders    *workorder.Repo
	vehicles  *vehicle.Repo
	generator *workorder.Service
	lock      discovery.RunnerLock
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	log       logger.Logger

	interval    time.Duration
	requesterID string // 计划工单的发起人（系统账号）

	now func() time.Time

	mu      sync.Mutex
	lastRun RunStatus

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// RunStatus 最近一轮扫描的运行情况。调度器没有请求级 API，只暴露这个。
type RunStatus struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Generated  int // 本轮生成的工单数
	Failed     int // 本轮失败的 (vehicle, plan) 对数
	Skipped    int // 本轮跳过数（未到期 / 已有开放工单 / 锁在别处）
}

func New(db *gorm.DB, plans *plan.Repo, orders *workorder.Repo, vehicles *vehicle.Repo, generator *workorder.Service, lock discovery.RunnerLock, notifier notify.Notifier, m *metrics.Metrics, log logger.Logger, interval time.Duration, requesterID string) *Scheduler {
	if lock == nil {
		lock = discovery.NopRunnerLock{}
	}
	return &Scheduler{
		db:          db,
		plans:       plans,
		orders:      orders,
		vehicles:    vehicles,
		generator:   generator,
		lock:        lock,
		notifier:    notifier,
		metrics:     m,
		log:         log,
		interval:    interval,
		requesterID: requesterID,
		now:         time.Now,
		stopChan:    make(chan struct{}),
	}
}

// Start 启动扫描循环。Stop 只会在两轮之间生效，不会打断进行中的一轮。
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop 停止扫描循环并等待当前一轮结束。
func (s *Scheduler) Stop() {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	interval := s.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce(context.Background())
		}
	}
}

// Status 最近一轮的运行情况。
func (s *Scheduler) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// RunOnce 执行一轮扫描。单个 (vehicle, plan) 对的失败只记日志，
// 绝不中断对其余记录的评估；本函数总是跑完。
func (s *Scheduler) RunOnce(ctx context.Context) RunStatus {
	span, ctx := tracing.StartSpan(ctx, "scheduler.RunOnce")
	defer span.Finish()

	status := RunStatus{StartedAt: s.now()}
	defer func() {
		status.FinishedAt = s.now()
		s.mu.Lock()
		s.lastRun = status
		s.mu.Unlock()
	}()

	s.metrics.SchedulerRuns.Inc()

	acquired, err := s.lock.TryAcquire()
	if err != nil {
		s.log.Warnf("scheduler: failed to acquire runner lock: %v", err)
		status.Failed++
		return status
	}
	if !acquired {
		s.log.Debug("scheduler: runner lock held elsewhere, skipping run")
		status.Skipped++
		return status
	}
	defer func() {
		if err := s.lock.Release(); err != nil {
			s.log.Warnf("scheduler: failed to release runner lock: %v", err)
		}
	}()

	links, err := s.plans.ListActiveLinks(ctx)
	if err != nil {
		s.log.Errorf("scheduler: failed to load active links: %v", err)
		status.Failed++
		return status
	}

	now := s.now()
	for _, al := range links {
		if !isDue(al, now) {
			status.Skipped++
			continue
		}
		generated, orderID, err := s.generateForLink(ctx, al, now)
		switch {
		case err != nil:
			status.Failed++
			s.metrics.SchedulerLinkFailures.Inc()
			s.log.WithFields(map[string]interface{}{
				"vehicle_id": al.Vehicle.ID,
				"plan_id":    al.Plan.ID,
			}).Errorf("scheduler: generation failed: %v", err)
		case !generated:
			// 幂等：该 (vehicle, plan) 已有开放工单
			status.Skipped++
		default:
			status.Generated++
			s.metrics.WorkOrdersGenerated.WithLabelValues("scheduler").Inc()
			s.notifier.Publish(ctx, notify.Event{
				EntityType: "work_order", EntityID: orderID, NewState: string(workorder.StatusNotStarted),
			})
			s.log.Infof("scheduler: generated work order %s for vehicle %s plan %s", orderID, al.Vehicle.ID, al.Plan.ID)
		}
	}

	return status
}

// isDue 判断到期：里程类比较 odometer，时间类比较日期。
// NextDueAt* 为空表示从未生成过，视为立即到期（首轮把周期跑起来）。
func isDue(al plan.ActiveLink, now time.Time) bool {
	if now.Before(al.Plan.StartsAt) {
		return false
	}
	if al.Plan.RecurrenceUnit == plan.UnitDistance {
		if al.Link.NextDueAtOdometer == nil {
			return true
		}
		return al.Vehicle.Odometer >= *al.Link.NextDueAtOdometer
	}
	if al.Link.NextDueAtDate == nil {
		return true
	}
	return !now.Before(*al.Link.NextDueAtDate)
}

// generateForLink 在一个事务内：幂等检查 -> 生成工单 -> 推进到期记录。
// 车辆在事务内带锁重读，工单与到期推进基于已提交的里程，而不是扫描时的快照。
// 返回 generated=false 表示因已有开放工单而跳过。
func (s *Scheduler) generateForLink(ctx context.Context, al plan.ActiveLink, now time.Time) (generated bool, orderID string, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		open, err := s.orders.FindOpenByPlanVehicle(ctx, tx, al.Plan.ID, al.Vehicle.ID)
		if err != nil {
			return err
		}
		if open != nil {
			return nil
		}

		link, err := s.plans.GetLinkForUpdate(ctx, tx, al.Vehicle.ID, al.Plan.ID)
		if err != nil {
			return err
		}

		v, err := s.vehicles.FindByIDForUpdate(ctx, tx, al.Vehicle.ID)
		if err != nil {
			return err
		}

		o, err := s.generator.GenerateInTx(ctx, tx, &al.Plan, v, link, s.requesterID)
		if err != nil {
			return err
		}

		odometer := v.Odometer
		link.LastDoneAtOdometer = &odometer
		doneAt := now
		link.LastDoneAtDate = &doneAt
		if al.Plan.RecurrenceUnit == plan.UnitDistance {
			next := odometer + al.Plan.RecurrenceAmount
			link.NextDueAtOdometer = &next
		} else {
			next := al.Plan.RecurrenceUnit.NextDate(now, int(al.Plan.RecurrenceAmount))
			link.NextDueAtDate = &next
		}
		if err := s.plans.UpdateLink(ctx, tx, link); err != nil {
			return err
		}

		generated = true
		orderID = o.ID
		return nil
	})
	return generated, orderID, err
}
