package discovery

import (
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"
)

// RunnerLock 基于 Consul session + KV acquire 的单实例运行锁。
// 保养到期调度器在多副本部署下用它保证同一时刻只有一个副本在跑扫描。
type RunnerLock interface {
	// TryAcquire 尝试获取锁；返回 false 表示锁在别的实例手里，本轮应跳过。
	TryAcquire() (bool, error)
	// Release 释放锁并销毁会话。已释放时调用是安全的。
	Release() error
}

// ConsulRunnerLock RunnerLock 的 Consul 实现。
type ConsulRunnerLock struct {
	client    *api.Client
	key       string
	holder    string
	ttl       time.Duration
	sessionID string
}

// NewConsulRunnerLock 创建运行锁。key 是 KV 路径，holder 用于标识持有者（一般为 serviceID）。
func NewConsulRunnerLock(client *api.Client, key, holder string, ttl time.Duration) *ConsulRunnerLock {
	if ttl < 10*time.Second {
		// Consul session TTL 下限
		ttl = 10 * time.Second
	}
	return &ConsulRunnerLock{
		client: client,
		key:    key,
		holder: holder,
		ttl:    ttl,
	}
}

func (l *ConsulRunnerLock) TryAcquire() (bool, error) {
	if l.client == nil {
		return false, fmt.Errorf("consul client is nil")
	}

	sessionID, _, err := l.client.Session().Create(&api.SessionEntry{
		Name:     l.key,
		TTL:      l.ttl.String(),
		Behavior: api.SessionBehaviorDelete,
	}, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create consul session: %w", err)
	}

	acquired, _, err := l.client.KV().Acquire(&api.KVPair{
		Key:     l.key,
		Value:   []byte(l.holder),
		Session: sessionID,
	}, nil)
	if err != nil {
		_, _ = l.client.Session().Destroy(sessionID, nil)
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		_, _ = l.client.Session().Destroy(sessionID, nil)
		return false, nil
	}

	l.sessionID = sessionID
	return true, nil
}

func (l *ConsulRunnerLock) Release() error {
	if l.sessionID == "" {
		return nil
	}
	_, _, err := l.client.KV().Release(&api.KVPair{
		Key:     l.key,
		Value:   []byte(l.holder),
		Session: l.sessionID,
	}, nil)
	_, _ = l.client.Session().Destroy(l.sessionID, nil)
	l.sessionID = ""
	return err
}

// NopRunnerLock 总是成功的锁实现，单实例部署或测试时使用。
type NopRunnerLock struct{}

func (NopRunnerLock) TryAcquire() (bool, error) { return true, nil }
func (NopRunnerLock) Release() error            { return nil }
