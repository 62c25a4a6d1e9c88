package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stoyanka/internal/config"
	"stoyanka/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisChallengeRepository хранит вызовы OTP в Redis. TTL ключа совпадает
// со сроком действия кода, поэтому протухшие вызовы исчезают сами.
type RedisChallengeRepository struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisChallengeRepository(client *redis.Client) *RedisChallengeRepository {
	return &RedisChallengeRepository{client: client}
}

func challengeKey(reservationID, phase string) string {
	return fmt.Sprintf("otp:%s:%s", reservationID, phase)
}

func (r *RedisChallengeRepository) GetChallenge(ctx context.Context, reservationID, phase string) (*models.Challenge, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, challengeKey(reservationID, phase)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge from redis: %w", err)
	}

	var ch models.Challenge
	if err := json.Unmarshal([]byte(val), &ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal challenge: %w", err)
	}

	return &ch, nil
}

func (r *RedisChallengeRepository) PutChallenge(ctx context.Context, ch *models.Challenge) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	ttl := time.Until(ch.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}

	key := challengeKey(ch.ReservationID, ch.Phase)
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set challenge in redis: %w", err)
	}

	return nil
}

func (r *RedisChallengeRepository) DeleteChallenge(ctx context.Context, reservationID, phase string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, challengeKey(reservationID, phase)).Err(); err != nil {
		return fmt.Errorf("failed to delete challenge from redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
