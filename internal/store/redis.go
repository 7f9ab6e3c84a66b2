// Package store ships the persistence collaborators the rest of the system
// consumes through their own interfaces: conversation history and
// personality config for agents, analyses for the orchestrator, session and
// summon records for the gateway. The Redis implementation is the
// production one; Memory backs tests and single-node development.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/leaguemind-ai/leaguemind/internal/agent"
	"github.com/leaguemind-ai/leaguemind/internal/gateway"
	"github.com/leaguemind-ai/leaguemind/internal/orchestrator"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

// conversationCap bounds every per-(session, agent) history list.
const conversationCap = 50

// RedisConfig holds connection settings for the Redis store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // key prefix, default "leaguemind:"
	TTL      time.Duration // per-key expiry, 0 = never
	PoolSize int
}

// Redis is the Redis-backed store.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects and pings the server.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewRedisFromClient wraps an existing client, which is how the tests hand
// in miniredis.
func NewRedisFromClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "leaguemind:"
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) conversationKey(sessionID, agentKey string) string {
	return r.prefix + "conv:" + sessionID + ":" + agentKey
}

func (r *Redis) configKey(agentKey string) string {
	return r.prefix + "config:" + agentKey
}

func (r *Redis) analysisKey(id string) string {
	return r.prefix + "analysis:" + id
}

func (r *Redis) sessionKey(id string) string {
	return r.prefix + "session:" + id
}

func (r *Redis) summonKey(id string) string {
	return r.prefix + "summon:" + id
}

// LoadConversation returns up to limit most recent turns, oldest first.
func (r *Redis) LoadConversation(ctx context.Context, sessionID, agentKey string, limit int) ([]agent.Turn, error) {
	key := r.conversationKey(sessionID, agentKey)
	data, err := r.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	turns := make([]agent.Turn, 0, len(data))
	for _, d := range data {
		var t agent.Turn
		if err := json.Unmarshal([]byte(d), &t); err != nil {
			return nil, fmt.Errorf("unmarshal turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// AppendConversation appends turns and trims the list to the history cap.
func (r *Redis) AppendConversation(ctx context.Context, sessionID, agentKey string, turns ...agent.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	key := r.conversationKey(sessionID, agentKey)

	values := make([]any, 0, len(turns))
	for _, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal turn: %w", err)
		}
		values = append(values, data)
	}

	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, -conversationCap, -1)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append conversation: %w", err)
	}
	return nil
}

// LoadAgentConfig returns the stored personality override, or (nil, nil)
// when none exists.
func (r *Redis) LoadAgentConfig(ctx context.Context, agentKey string) (*persona.Override, error) {
	data, err := r.client.Get(ctx, r.configKey(agentKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load agent config: %w", err)
	}

	var o persona.Override
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("unmarshal agent config: %w", err)
	}
	return &o, nil
}

// SaveAgentConfig persists a personality override. Config keys never expire;
// a tuned personality should survive quiet stretches.
func (r *Redis) SaveAgentConfig(ctx context.Context, agentKey string, o *persona.Override) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal agent config: %w", err)
	}
	if err := r.client.Set(ctx, r.configKey(agentKey), data, 0).Err(); err != nil {
		return fmt.Errorf("save agent config: %w", err)
	}
	return nil
}

// SaveAnalysis persists a collaborative analysis for audit and replay.
func (r *Redis) SaveAnalysis(ctx context.Context, a *orchestrator.Analysis) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	if err := r.client.Set(ctx, r.analysisKey(a.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// LoadAnalysis retrieves a persisted analysis by id.
func (r *Redis) LoadAnalysis(ctx context.Context, id string) (*orchestrator.Analysis, error) {
	data, err := r.client.Get(ctx, r.analysisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("analysis %s not found", id)
		}
		return nil, fmt.Errorf("load analysis: %w", err)
	}

	var a orchestrator.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("unmarshal analysis: %w", err)
	}
	return &a, nil
}

// SaveSessionRecord persists a session's lightweight record.
func (r *Redis) SaveSessionRecord(ctx context.Context, rec *gateway.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(rec.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save session record: %w", err)
	}
	return nil
}

// EndSessionRecord stamps the end time on a stored session record. A
// missing record is not an error; the session may predate the store.
func (r *Redis) EndSessionRecord(ctx context.Context, sessionID string, endedAt time.Time) error {
	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("load session record: %w", err)
	}

	var rec gateway.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("unmarshal session record: %w", err)
	}
	rec.EndedAt = endedAt

	updated, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(sessionID), updated, r.ttl).Err(); err != nil {
		return fmt.Errorf("end session record: %w", err)
	}
	return nil
}

// CreateSummonRecord persists a summon audit entry.
func (r *Redis) CreateSummonRecord(ctx context.Context, rec *gateway.SummonRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal summon record: %w", err)
	}
	if err := r.client.Set(ctx, r.summonKey(rec.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("create summon record: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client's connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
