// Package cache puts a Redis read-through cache in front of the rate table.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/config"
	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "rate:"

type cachedRate struct {
	Base          string    `json:"base"`
	Quote         string    `json:"quote"`
	Rate          string    `json:"rate"`
	EffectiveDate time.Time `json:"effective_date"`
}

// RateCache wraps an ExchangeRateRepository. Misses are not cached, so a
// freshly imported pair is visible on the next lookup. Redis errors fall
// back to the wrapped repository.
type RateCache struct {
	next   domain.ExchangeRateRepository
	client *redis.Client
	ttl    time.Duration
}

func NewRateCache(next domain.ExchangeRateRepository, client *redis.Client, ttl time.Duration) *RateCache {
	return &RateCache{next: next, client: client, ttl: ttl}
}

func NewClient(ctx context.Context, cfg config.RedisCache) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  800 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (c *RateCache) GetLatestRate(ctx context.Context, base, quote string) (*domain.ExchangeRate, error) {
	key := rateKey(base, quote)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if rate, decodeErr := decodeRate(raw); decodeErr == nil {
			return rate, nil
		}
		slog.Warn("dropping undecodable cached rate", "key", key)
	case !errors.Is(err, redis.Nil):
		slog.Warn("rate cache read failed", "key", key, "error", err)
	}

	rate, err := c.next.GetLatestRate(ctx, base, quote)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cachedRate{
		Base:          rate.Base,
		Quote:         rate.Quote,
		Rate:          rate.Rate.String(),
		EffectiveDate: rate.EffectiveDate,
	})
	if err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			slog.Warn("rate cache write failed", "key", key, "error", err)
		}
	}

	return rate, nil
}

func (c *RateCache) UpsertRates(ctx context.Context, rates []*domain.ExchangeRate) error {
	if err := c.next.UpsertRates(ctx, rates); err != nil {
		return err
	}

	keys := make([]string, 0, len(rates))
	for _, rate := range rates {
		keys = append(keys, rateKey(rate.Base, rate.Quote))
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			slog.Warn("rate cache invalidation failed", "keys", len(keys), "error", err)
		}
	}
	return nil
}

func rateKey(base, quote string) string {
	return keyPrefix + domain.NormalizeCurrency(base) + ":" + domain.NormalizeCurrency(quote)
}
