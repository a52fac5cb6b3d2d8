package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ifeelsam/core-bet/internal/domain"
	"github.com/redis/go-redis/v9"
)

const snapshotKey = "mines:status:%d:%s"

// SnapshotCache общий кэш снапшотов в redis, живет не дольше окна кэша
type SnapshotCache struct {
	client  *redis.Client
	chainID int64
	ttl     time.Duration
}

// создает кэш поверх готового клиента
func NewSnapshotCache(client *redis.Client, chainID int64, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, chainID: chainID, ttl: ttl}
}

// ConnectRedis открывает клиент по redis:// URL и проверяет соединение
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("неверный REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis недоступен: %w", err)
	}
	return client, nil
}

func (c *SnapshotCache) key(address common.Address) string {
	return fmt.Sprintf(snapshotKey, c.chainID, address.Hex())
}

// Get снапшот адреса. ok == false если записи нет
func (c *SnapshotCache) Get(ctx context.Context, address common.Address) (domain.SyncSnapshot, bool, error) {
	data, err := c.client.Get(ctx, c.key(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SyncSnapshot{}, false, nil
	}
	if err != nil {
		return domain.SyncSnapshot{}, false, err
	}

	var snap domain.SyncSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.SyncSnapshot{}, false, fmt.Errorf("битый снапшот в кэше: %w", err)
	}
	return snap, true, nil
}

// Set сохраняет снапшот. stale-error в кэш не пишется
func (c *SnapshotCache) Set(ctx context.Context, address common.Address, snap domain.SyncSnapshot) error {
	if snap.Source == domain.SourceStaleError {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(address), data, c.ttl).Err()
}

// Delete убирает снапшот адреса
func (c *SnapshotCache) Delete(ctx context.Context, address common.Address) error {
	return c.client.Del(ctx, c.key(address)).Err()
}
