// 文件: pkg/vault/snapshot_cache.go
// 池子状态 Redis 快照
//
// 【缓存策略】提交后全量覆写 (状态以内存为权威，缓存只给外部读者)
// - 行情页 / 风控看板直接读 Redis，不打到引擎
// - 写失败只记日志: 缓存是旁路，不参与记账

package vault

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// 缓存 Key: vault:pool:{token}
	snapshotKeyPool = "vault:pool:"

	// 缓存过期时间
	snapshotTTL = 24 * time.Hour
)

// SnapshotCache 池子状态快照缓存
type SnapshotCache struct {
	redis *redis.Client
}

// NewSnapshotCache 创建快照缓存
func NewSnapshotCache(rds *redis.Client) *SnapshotCache {
	return &SnapshotCache{redis: rds}
}

// WritePool 覆写单个池子快照
func (c *SnapshotCache) WritePool(ctx context.Context, p *PoolState) {
	data, err := json.Marshal(p)
	if err != nil {
		log.Printf("[Snapshot] marshal pool failed: token=%s err=%v", p.Token, err)
		return
	}
	if err := c.redis.Set(ctx, snapshotKeyPool+p.Token, data, snapshotTTL).Err(); err != nil {
		log.Printf("[Snapshot] write pool failed: token=%s err=%v", p.Token, err)
	}
}

// ReadPool 读池子快照 (外部消费者用)，miss 返回 nil
func (c *SnapshotCache) ReadPool(ctx context.Context, token string) (*PoolState, error) {
	data, err := c.redis.Get(ctx, snapshotKeyPool+token).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p PoolState
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
