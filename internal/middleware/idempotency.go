package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader    = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotency-Replay"
	pendingMarker           = "pending"

	redisOpTimeout = 2 * time.Second
)

type replayRecord struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency makes unsafe methods replay-safe: the first request under a key
// executes and its response is recorded in Redis; repeats within the TTL get
// the recorded response back with Idempotency-Replay set. Keys are scoped per
// method and path, so reusing a key against a different endpoint is a fresh
// request, not a replay.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := c.Get(idempotencyKeyHeader)
		if key == "" {
			return fiber.NewError(fiber.StatusBadRequest, "missing Idempotency-Key header")
		}
		redisKey := fmt.Sprintf("idem:%s:%s:%s", c.Method(), c.Path(), key)

		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()

		// Reserve the key; losing the race means another request with the
		// same key is ahead of us, finished or not.
		reserved, err := cache.SetNX(ctx, redisKey, pendingMarker, ttl).Result()
		if err != nil {
			logger.Error("idempotency reservation failed", "key", key, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "idempotency store unavailable")
		}
		if !reserved {
			return replayStored(c, cache, redisKey, key, logger)
		}

		if err := c.Next(); err != nil {
			dropKey(cache, redisKey)
			return err
		}

		rec := replayRecord{
			Status:      c.Response().StatusCode(),
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			logger.Error("encode replay record", "key", key, "error", err)
			dropKey(cache, redisKey)
			return nil
		}

		persistCtx, persistCancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer persistCancel()
		if err := cache.Set(persistCtx, redisKey, payload, ttl).Err(); err != nil {
			logger.Error("persist replay record", "key", key, "error", err)
			dropKey(cache, redisKey)
		}
		return nil
	}
}

func replayStored(c *fiber.Ctx, cache *redis.Client, redisKey, key string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	stored, err := cache.Get(ctx, redisKey).Result()
	if err != nil {
		if err == redis.Nil {
			// Reservation expired between SetNX and Get; treat as a duplicate
			// rather than re-running a write the caller believes happened.
			return fiber.NewError(fiber.StatusConflict, "duplicate request")
		}
		logger.Error("idempotency lookup failed", "key", key, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "idempotency store unavailable")
	}
	if stored == pendingMarker {
		return fiber.NewError(fiber.StatusConflict, "request with this key is still processing")
	}

	var rec replayRecord
	if err := json.Unmarshal([]byte(stored), &rec); err != nil {
		logger.Warn("corrupt replay record", "key", key, "error", err)
		return fiber.NewError(fiber.StatusConflict, "duplicate request")
	}

	if rec.ContentType != "" {
		c.Set(fiber.HeaderContentType, rec.ContentType)
	}
	c.Set(idempotencyReplayHeader, "true")
	return c.Status(rec.Status).Send(rec.Body)
}

func dropKey(cache *redis.Client, redisKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	_ = cache.Del(ctx, redisKey).Err()
}
