package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"crm_chat/pkg/logger"
)

const unreadKeyPrefix = "chat:unread:%s"

// UnreadCacheRepository кеширует счетчик непрочитанных в Redis, чтобы не
// ходить в Postgres на каждый опрос бейджа. Кеш сбрасывается при любой
// мутации, которая может его изменить.
type UnreadCacheRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (int64, bool, error)
	Set(ctx context.Context, userID uuid.UUID, count int64, ttl time.Duration) error
	Invalidate(ctx context.Context, userIDs ...uuid.UUID) error
}

type unreadCacheRepository struct {
	rdb *redis.Client
	log logger.Logger
}

func NewUnreadCacheRepository(rdb *redis.Client, log logger.Logger) UnreadCacheRepository {
	return &unreadCacheRepository{rdb: rdb, log: log}
}

func unreadKey(userID uuid.UUID) string {
	return fmt.Sprintf(unreadKeyPrefix, userID.String())
}

func (r *unreadCacheRepository) Get(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	count, err := r.rdb.Get(ctx, unreadKey(userID)).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		r.log.Error("Failed to get unread cache", "error", err, "user_id", userID)
		return 0, false, err
	}

	return count, true, nil
}

func (r *unreadCacheRepository) Set(ctx context.Context, userID uuid.UUID, count int64, ttl time.Duration) error {
	err := r.rdb.Set(ctx, unreadKey(userID), count, ttl).Err()
	if err != nil {
		r.log.Warn("Failed to set unread cache", "error", err, "user_id", userID)
	}
	return err
}

func (r *unreadCacheRepository) Invalidate(ctx context.Context, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, unreadKey(id))
	}

	err := r.rdb.Del(ctx, keys...).Err()
	if err != nil {
		r.log.Warn("Failed to invalidate unread cache", "error", err)
	}
	return err
}
