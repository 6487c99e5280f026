package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "X-Idempotency-Key"

	DefaultIdempotencyTTL           = 24 * time.Hour
	DefaultIdempotencyProcessingTTL = 60 * time.Second

	idempotencyKeyPrefix = "studio:idempotency:"
	maxIdempotencyKeyLen = 128
)

type idempotencyStatus string

const (
	idempotencyProcessing idempotencyStatus = "processing"
	idempotencyCompleted  idempotencyStatus = "completed"
)

type idempotencyRecord struct {
	Status       idempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code"`
	ResponseBody []byte            `json:"response_body"`
	CreatedAt    time.Time         `json:"created_at"`
}

// RedisClient is the subset of *redis.Client the replay cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type IdempotencyConfig struct {
	Redis RedisClient
	// TTL keeps completed responses replayable.
	TTL time.Duration
	// ProcessingTTL bounds how long a crashed request can hold its key.
	ProcessingTTL time.Duration
	Log           *zap.Logger
}

// Idempotency replays the stored response when a client retries a mutating
// request with the same X-Idempotency-Key. Requests without the header pass
// through, and so does everything while Redis is unreachable: the booking engine
// is idempotent on its own, the cache only saves the round trip.
func Idempotency(cfg IdempotencyConfig) fiber.Handler {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultIdempotencyTTL
	}
	if cfg.ProcessingTTL <= 0 {
		cfg.ProcessingTTL = DefaultIdempotencyProcessingTTL
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if cfg.Redis == nil {
			return c.Next()
		}
		key := c.Get(IdempotencyKeyHeader)
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_idempotency_key"})
		}

		userID, _ := c.Locals("user_id").(string)
		redisKey := fmt.Sprintf("%s%s:%s", idempotencyKeyPrefix, userID, key)
		requestHash := hashRequest(c, userID)
		ctx := c.UserContext()

		existing, err := getIdempotencyRecord(ctx, cfg.Redis, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			log.Warn("idempotency cache unavailable", zap.Error(err))
			return c.Next()
		}
		if existing != nil {
			return replay(c, existing, requestHash)
		}

		record := idempotencyRecord{
			Status:      idempotencyProcessing,
			RequestHash: requestHash,
			CreatedAt:   time.Now().UTC(),
		}
		claimed, err := setIdempotencyRecord(ctx, cfg.Redis, redisKey, record, cfg.ProcessingTTL, true)
		if err != nil {
			log.Warn("idempotency cache unavailable", zap.Error(err))
			return c.Next()
		}
		if !claimed {
			existing, err = getIdempotencyRecord(ctx, cfg.Redis, redisKey)
			if err == nil && existing != nil {
				return replay(c, existing, requestHash)
			}
			return c.Next()
		}

		if err := c.Next(); err != nil {
			_ = cfg.Redis.Del(ctx, redisKey).Err()
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			// Let the client retry for real.
			_ = cfg.Redis.Del(ctx, redisKey).Err()
			return nil
		}

		record.Status = idempotencyCompleted
		record.ResponseCode = status
		record.ResponseBody = append([]byte(nil), c.Response().Body()...)
		if _, err := setIdempotencyRecord(ctx, cfg.Redis, redisKey, record, cfg.TTL, false); err != nil {
			log.Warn("store idempotent response", zap.Error(err))
		}
		return nil
	}
}

func replay(c *fiber.Ctx, record *idempotencyRecord, requestHash string) error {
	if record.RequestHash != requestHash {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "idempotency_key_reused"})
	}
	if record.Status == idempotencyProcessing {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "request_in_progress"})
	}
	c.Set("Idempotent-Replayed", "true")
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(record.ResponseCode).Send(record.ResponseBody)
}

func hashRequest(c *fiber.Ctx, userID string) string {
	h := sha256.New()
	h.Write([]byte(c.Method()))
	h.Write([]byte(c.Path()))
	h.Write([]byte(userID))
	h.Write(c.Body())
	return hex.EncodeToString(h.Sum(nil))
}

func getIdempotencyRecord(ctx context.Context, client RedisClient, key string) (*idempotencyRecord, error) {
	raw, err := client.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func setIdempotencyRecord(
	ctx context.Context,
	client RedisClient,
	key string,
	record idempotencyRecord,
	ttl time.Duration,
	onlyIfAbsent bool,
) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, err
	}
	if onlyIfAbsent {
		return client.SetNX(ctx, key, string(data), ttl).Result()
	}
	if err := client.Set(ctx, key, string(data), ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}
