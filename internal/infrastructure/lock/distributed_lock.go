package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么 worker 触发需要锁？】
//
// 场景：cron 两次触发重叠（上一轮还没跑完），或管理员手动触发撞上 cron。
//
// 条目级的条件状态更新已经保证不会重复发布，锁不是正确性手段；
// 但重叠运行会让第二个实例查出同一批条目、逐条抢锁失败，
// 白白消耗数据库查询和本轮配额。触发入口先抢一把运行锁，
// 抢不到直接返回"运行中"，把无效运行挡在门外。
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
//   - 先检查 value 是否是自己的
//   - 再删除 key
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
//
// 使用 SetNX 命令，只有当 key 不存在时才能设置成功，
// 保证同一时刻只有一个触发方能启动 worker 运行。
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Unlock 释放锁
//
// 使用 Lua 脚本保证"检查+删除"操作的原子性：
// 锁过期后被其他触发方持有时，不能删掉别人的锁。
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewWorkerRunLock 创建 worker 运行锁
//
// 按平台维度加锁：带 platform 过滤的运行只锁该平台，
// 不同平台的触发可以并发；全量运行使用全局 key。
// 过期时间与运行时间预算同量级，实例崩溃后锁自动释放。
func NewWorkerRunLock(client *redis.Client, platform, holder string, expiration time.Duration) *DistributedLock {
	key := "pubqueue:worker:run"
	if platform != "" {
		key = fmt.Sprintf("pubqueue:worker:run:%s", platform)
	}
	return NewDistributedLock(client, key, holder, expiration)
}
