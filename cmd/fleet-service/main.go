package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/SmartFleetOps/SmartFleetOps/internal/assignment"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/config"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/db"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/discovery"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/logger"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/server"
	"github.com/SmartFleetOps/SmartFleetOps/internal/common/tracing"
	"github.com/SmartFleetOps/SmartFleetOps/internal/metrics"
	"github.com/SmartFleetOps/SmartFleetOps/internal/notify"
	"github.com/SmartFleetOps/SmartFleetOps/internal/plan"
	"github.com/SmartFleetOps/SmartFleetOps/internal/scheduler"
	"github.com/SmartFleetOps/SmartFleetOps/internal/user"
	"github.com/SmartFleetOps/SmartFleetOps/internal/vehicle"
	"github.com/SmartFleetOps/SmartFleetOps/internal/workorder"
)

var (
	configPath = flag.String("config", "configs/fleet-service.json", "配置文件路径")
	// 计划工单的发起人，需要是 users 表里存在的系统账号
	schedulerUser = flag.String("scheduler-user", "system", "调度器生成工单使用的用户ID")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪（InitTracer 内部设置全局 tracer）
	if _, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	); err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}

	// 初始化数据库
	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(
		&vehicle.Vehicle{},
		&user.User{},
		&plan.MaintenancePlan{},
		&plan.PlanTask{},
		&plan.VehiclePlanLink{},
		&workorder.WorkOrder{},
		&workorder.WorkOrderTask{},
		&assignment.RouteAssignment{},
	); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	// 指标
	m, err := metrics.New(nil)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	// 变更通知出口（未配置 broker 时退化为 Nop）
	var notifier notify.Notifier = notify.Nop{}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		kn := notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer kn.Close()
		notifier = kn
	}

	// 仓储与服务装配：依赖显式注入，不存在包级全局注册表
	vehicleRepo := vehicle.NewRepo(gormDB)
	userRepo := user.NewRepo(gormDB)
	planRepo := plan.NewRepo(gormDB)
	orderRepo := workorder.NewRepo(gormDB)

	// plan.Service / assignment.Service 是暴露给外层（HTTP 网关）的进程内接口，
	// 本进程只装配调度器消费的 orderSvc。
	orderSvc := workorder.NewService(gormDB, orderRepo, vehicleRepo, userRepo, planRepo, notifier, m, log)

	// 调度器单实例锁（Consul 不可用时退化为本地锁，单副本部署够用）
	var lock discovery.RunnerLock = discovery.NopRunnerLock{}
	if consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port); err == nil {
		lock = discovery.NewConsulRunnerLock(
			consulClient,
			cfg.Scheduler.LockKey,
			cfg.Server.Name,
			time.Duration(cfg.Scheduler.LockTTLSeconds)*time.Second,
		)
	} else {
		log.Warnf("consul unavailable, scheduler runs without distributed lock: %v", err)
	}

	var components []server.Component
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(
			gormDB, planRepo, orderRepo, vehicleRepo, orderSvc, lock, notifier, m, log,
			time.Duration(cfg.Scheduler.IntervalMinutes)*time.Minute,
			*schedulerUser,
		)
		components = append(components, sched)
	}

	metricsSrv := metrics.NewHTTPServer(cfg.Server.Host, cfg.Server.MetricsPort)

	if err := server.Run(cfg, log, metricsSrv, components); err != nil {
		log.Fatalf("fleet-service exited with error: %v", err)
	}
}
