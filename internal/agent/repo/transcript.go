package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/receiptqa/server/internal/agent/model"
	errx "github.com/receiptqa/server/internal/core/error"
	logx "github.com/receiptqa/server/pkg/logger"
)

// RedisTranscriptRepository archives finished run conversations.
type RedisTranscriptRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisTranscriptRepository(rdb redis.Cmdable, ttl time.Duration) *RedisTranscriptRepository {
	return &RedisTranscriptRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisTranscriptRepository) transcriptKey(runID string) string {
	return fmt.Sprintf("transcript:%s:messages", runID)
}

// SaveTranscript replaces any stored transcript for runID in one transaction.
func (r *RedisTranscriptRepository) SaveTranscript(ctx context.Context, runID string, messages []*schema.Message) error {
	rows := make([]any, 0, len(messages))
	for i, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("run_id", runID).Int("index", i).Msg("failed to marshal message")
			return fmt.Errorf("marshal message at index %d: %w", i, err)
		}
		rows = append(rows, b)
	}

	key := r.transcriptKey(runID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(rows) > 0 {
			pipe.RPush(ctx, key, rows...)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save transcript to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// LoadTranscript returns the stored transcript; an unknown run is a not-found
// AppError.
func (r *RedisTranscriptRepository) LoadTranscript(ctx context.Context, runID string) (*model.Transcript, error) {
	key := r.transcriptKey(runID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load transcript from redis")
		return nil, errx.WrapRedis(err)
	}
	if len(rows) == 0 {
		return nil, errx.WrapRedis(redis.Nil)
	}

	msgs := make([]*schema.Message, 0, len(rows))
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("run_id", runID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		msgs = append(msgs, &m)
	}
	return &model.Transcript{RunID: runID, Messages: msgs}, nil
}

func (r *RedisTranscriptRepository) DeleteTranscript(ctx context.Context, runID string) error {
	key := r.transcriptKey(runID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete transcript from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisTranscriptRepository) GetMessageCount(ctx context.Context, runID string) (int, error) {
	key := r.transcriptKey(runID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.TranscriptRepository = (*RedisTranscriptRepository)(nil)
