package infra

import (
	"context"
	"fmt"
	"time"

	"campusperks/internal/config"
	"campusperks/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisPingTimeout 初始化时连通性探测的超时时间
const redisPingTimeout = 5 * time.Second

// InitRedis 按配置模式构建 Redis 客户端并探测连通性，
// 支持 standalone(单节点)、sentinel(哨兵)、cluster(集群) 三种部署形态。
// 返回错误时调用方可降级运行，令牌黑名单与统计缓存退化为直查数据库。
func InitRedis(cfg *config.RedisConfig) (redis.UniversalClient, error) {
	mode := cfg.Mode
	if mode == "" {
		mode = "standalone"
	}

	var (
		rdb    redis.UniversalClient
		fields []zap.Field
	)

	switch mode {
	case "standalone":
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
		rdb = redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
		})
		fields = []zap.Field{zap.String("addr", addr), zap.Int("db", cfg.DB)}

	case "sentinel":
		if cfg.MasterName == "" || len(cfg.SentinelAddrs) == 0 {
			return nil, fmt.Errorf("哨兵模式缺少 master_name 或 sentinel_addrs 配置")
		}
		rdb = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       cfg.MasterName,
			SentinelAddrs:    cfg.SentinelAddrs,
			SentinelPassword: cfg.SentinelPassword,
			Password:         cfg.Password,
			DB:               cfg.DB,
			PoolSize:         cfg.PoolSize,
			MinIdleConns:     cfg.MinIdleConns,
		})
		fields = []zap.Field{
			zap.String("master", cfg.MasterName),
			zap.Strings("sentinels", cfg.SentinelAddrs),
			zap.Int("db", cfg.DB),
		}

	case "cluster":
		if len(cfg.ClusterAddrs) == 0 {
			return nil, fmt.Errorf("集群模式缺少 cluster_addrs 配置")
		}
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.ClusterAddrs,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
		})
		fields = []zap.Field{zap.Strings("addrs", cfg.ClusterAddrs)}

	default:
		return nil, fmt.Errorf("不支持的 Redis 模式: %s (可选: standalone, sentinel, cluster)", mode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	logger.Info("Redis 连接成功", append(fields, zap.String("mode", mode))...)
	return rdb, nil
}

// CloseRedis 关闭 Redis 客户端，降级模式下客户端为 nil 时直接返回
func CloseRedis(rdb redis.UniversalClient) error {
	if rdb == nil {
		return nil
	}
	return rdb.Close()
}
