package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/artpar/fnrelease/internal/core/domain"
)

// DefaultMaxRuns caps the per-target run list kept in Redis.
const DefaultMaxRuns = 200

// RedisStore implements Store on Redis. Runs are JSON documents in a capped
// list per function and environment, newest at the head. Alias pointers live
// in a single hash.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
	maxRuns   int64
}

// NewRedisStore creates a store using rdb. An empty prefix defaults to "fnrelease".
func NewRedisStore(rdb redis.UniversalClient, prefix string, maxRuns int) *RedisStore {
	if prefix == "" {
		prefix = "fnrelease"
	}
	if maxRuns <= 0 {
		maxRuns = DefaultMaxRuns
	}
	return &RedisStore{rdb: rdb, keyPrefix: prefix, maxRuns: int64(maxRuns)}
}

func (s *RedisStore) key(parts ...string) string {
	return fmt.Sprintf("%s:%s", s.keyPrefix, strings.Join(parts, ":"))
}

func aliasField(function, environment string) string {
	return function + "/" + environment
}

func (s *RedisStore) RecordRun(ctx context.Context, run Run) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return NewLedgerError("RecordRun", "run", run.ID, "failed to serialize run", ErrInvalidData)
	}

	listKey := s.key("runs", run.Function, run.Environment)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, listKey, raw)
		pipe.LTrim(ctx, listKey, 0, s.maxRuns-1)
		return nil
	})
	if err != nil {
		return NewLedgerError("RecordRun", "run", run.ID, err.Error(), err)
	}
	return nil
}

func (s *RedisStore) ListRuns(ctx context.Context, function, environment string, limit int) ([]Run, error) {
	limit = normalizeLimit(limit)
	items, err := s.rdb.LRange(ctx, s.key("runs", function, environment), 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, NewLedgerError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]Run, 0, len(items))
	for _, item := range items {
		var run Run
		if err := json.Unmarshal([]byte(item), &run); err != nil {
			return nil, NewLedgerError("ListRuns", "run", "", "failed to parse run", ErrInvalidData)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (s *RedisStore) SaveAlias(ctx context.Context, alias domain.AliasPointer) error {
	id := aliasField(alias.Function, alias.Environment)
	raw, err := json.Marshal(alias)
	if err != nil {
		return NewLedgerError("SaveAlias", "alias", id, "failed to serialize alias", ErrInvalidData)
	}
	if err := s.rdb.HSet(ctx, s.key("aliases"), id, raw).Err(); err != nil {
		return NewLedgerError("SaveAlias", "alias", id, err.Error(), err)
	}
	return nil
}

func (s *RedisStore) GetAlias(ctx context.Context, function, environment string) (*domain.AliasPointer, error) {
	id := aliasField(function, environment)
	raw, err := s.rdb.HGet(ctx, s.key("aliases"), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, NewLedgerError("GetAlias", "alias", id, "alias not found", ErrNotFound)
		}
		return nil, NewLedgerError("GetAlias", "alias", id, err.Error(), err)
	}

	var alias domain.AliasPointer
	if err := json.Unmarshal([]byte(raw), &alias); err != nil {
		return nil, NewLedgerError("GetAlias", "alias", id, "failed to parse alias", ErrInvalidData)
	}
	return &alias, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
