package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"arxiv-digest/internal/common"
	"arxiv-digest/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "arxiv-digest:summary:"

// DefaultTTL 摘要缓存默认保留一周，arXiv 的论文一般不会在这期间被重复推送
const DefaultTTL = 7 * 24 * time.Hour

// RedisCache 实现了 port.SummaryCache 接口
type RedisCache struct {
	client *redis.Client
	model  string
	ttl    time.Duration
}

// NewRedisCache 按 redis URL (redis://host:6379/0) 或 host:port 创建缓存
func NewRedisCache(addr, model string, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		return nil, common.NewError(common.ErrCodeConfiguration, "redis 地址为空")
	}

	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	return NewRedisCacheWithClient(redis.NewClient(opts), model, ttl), nil
}

func NewRedisCacheWithClient(client *redis.Client, model string, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, model: model, ttl: ttl}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping 启动时检查连接
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return common.WrapError(common.ErrCodeCache, "无法连接 redis", err)
	}
	return nil
}

// key 不同模型生成的摘要分开缓存
func (c *RedisCache) key(paperID string) string {
	return keyPrefix + c.model + ":" + paperID
}

func (c *RedisCache) Get(ctx context.Context, paperID string) (*domain.Summary, bool, error) {
	data, err := c.client.Get(ctx, c.key(paperID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, common.WrapError(common.ErrCodeCache, "读取摘要缓存失败", err)
	}

	var s domain.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, common.WrapError(common.ErrCodeCache, "摘要缓存内容损坏: "+paperID, err)
	}
	return &s, true, nil
}

func (c *RedisCache) Set(ctx context.Context, paperID string, summary *domain.Summary) error {
	if summary == nil {
		return nil
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return common.WrapError(common.ErrCodeCache, "序列化摘要失败", err)
	}
	if err := c.client.Set(ctx, c.key(paperID), data, c.ttl).Err(); err != nil {
		return common.WrapError(common.ErrCodeCache, "写入摘要缓存失败", err)
	}
	return nil
}
