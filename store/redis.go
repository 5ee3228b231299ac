package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/model"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates a client for the configured redis server
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// RedisSettings keeps runtime settings in a single hash
type RedisSettings struct {
	client redis.Cmdable
	key    string
}

func NewRedisSettings(client redis.Cmdable, prefix string) *RedisSettings {
	return &RedisSettings{client: client, key: prefix + "settings"}
}

func (s *RedisSettings) All(ctx context.Context) (map[string]string, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis settings error: %w", err)
	}
	return values, nil
}

func (s *RedisSettings) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	if err := s.client.HSet(ctx, s.key, values).Err(); err != nil {
		return fmt.Errorf("redis settings error: %w", err)
	}
	return nil
}

// Apply sends the writes and removals in one MULTI/EXEC transaction
func (s *RedisSettings) Apply(ctx context.Context, set map[string]string, remove []string) error {
	if len(set) == 0 && len(remove) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(set) > 0 {
			pipe.HSet(ctx, s.key, set)
		}
		if len(remove) > 0 {
			pipe.HDel(ctx, s.key, remove...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis settings error: %w", err)
	}
	return nil
}

// RedisJournal keeps claims as JSON values in a hash keyed by document ID
type RedisJournal struct {
	client redis.Cmdable
	key    string
}

func NewRedisJournal(client redis.Cmdable, prefix string) *RedisJournal {
	return &RedisJournal{client: client, key: prefix + "claims"}
}

func (j *RedisJournal) Save(ctx context.Context, claim model.Claim) error {
	if claim.UpdatedAt.IsZero() {
		claim.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(claim)
	if err != nil {
		return fmt.Errorf("failed to marshal claim: %w", err)
	}
	if err := j.client.HSet(ctx, j.key, strconv.Itoa(claim.DocumentID), string(data)).Err(); err != nil {
		return fmt.Errorf("redis journal error: %w", err)
	}
	return nil
}

func (j *RedisJournal) Delete(ctx context.Context, documentID int) error {
	if err := j.client.HDel(ctx, j.key, strconv.Itoa(documentID)).Err(); err != nil {
		return fmt.Errorf("redis journal error: %w", err)
	}
	return nil
}

// List returns all claims ordered by document ID. Undecodable entries
// are reported as an error.
func (j *RedisJournal) List(ctx context.Context) ([]model.Claim, error) {
	values, err := j.client.HGetAll(ctx, j.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis journal error: %w", err)
	}

	claims := make([]model.Claim, 0, len(values))
	for field, value := range values {
		var c model.Claim
		if err := json.Unmarshal([]byte(value), &c); err != nil {
			return nil, fmt.Errorf("failed to parse claim %s: %w", field, err)
		}
		claims = append(claims, c)
	}
	slices.SortFunc(claims, func(a, b model.Claim) int {
		return a.DocumentID - b.DocumentID
	})
	return claims, nil
}
