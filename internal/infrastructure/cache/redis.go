package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"pubqueue/internal/config"

	"github.com/go-redis/redis/v8"
)

// InitRedis 初始化 Redis 连接
//
// Redis 仅用于 worker 触发的运行锁，未配置时返回 nil，
// 触发入口会跳过锁逻辑（条件状态更新本身保证不会重复发布）。
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	if cfg.Host == "" {
		log.Println("Redis 未配置，worker 运行锁关闭")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}

	log.Println("Redis 连接成功")
	return client
}
