package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const warmupLockTTL = 30 * time.Second

// WarmupStats — итог прогрева общего set из источника правды.
type WarmupStats struct {
	FromDB  int  // сколько ID вернул Postgres
	InRedis int  // размер set до прогрева
	Seeded  int  // сколько ID реально добавлено
	Skipped bool // прогрев делает другой инстанс
}

// WarmupSet заливает ids в пустой Redis set. Непустой set не трогаем:
// в нем могут быть блокировки, которые еще не дошли до БД.
// Одновременно греет только один инстанс, остальные получают Skipped.
func WarmupSet(ctx context.Context, rdb redis.UniversalClient, key, lockKey string, ids []string) (WarmupStats, error) {
	stats := WarmupStats{FromDB: len(ids)}

	ok, err := rdb.SetNX(ctx, lockKey, "processing", warmupLockTTL).Result()
	if err != nil {
		return stats, fmt.Errorf("warm-up lock %s: %w", lockKey, err)
	}
	if !ok {
		stats.Skipped = true
		return stats, nil
	}

	count, err := rdb.SCard(ctx, key).Result()
	if err != nil {
		return stats, fmt.Errorf("warm-up size of %s: %w", key, err)
	}
	stats.InRedis = int(count)
	if count > 0 || len(ids) == 0 {
		return stats, nil
	}

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	added, err := rdb.SAdd(ctx, key, members...).Result()
	if err != nil {
		return stats, fmt.Errorf("warm-up seed %s: %w", key, err)
	}
	stats.Seeded = int(added)
	return stats, nil
}
