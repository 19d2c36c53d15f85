package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gundog/internal/logging"
)

// RedisStore is the Redis-backed SnapshotStore, for deployments where
// sessions move between hosts. Documents live at state:<identity>:<scenario>
// and are merged the same way as the SQLite store, using WATCH to keep the
// read-modify-write atomic.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logging.Store("redis store ready at %s", addr)
	return &RedisStore{client: client}, nil
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func stateKey(identity, scenario string) string {
	return fmt.Sprintf("state:%s:%s", identity, scenario)
}

func (s *RedisStore) mergeDoc(ctx context.Context, identity, scenario string, keys map[string]json.RawMessage) error {
	key := stateKey(identity, scenario)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		doc := map[string]json.RawMessage{}
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == nil:
			if uerr := json.Unmarshal([]byte(raw), &doc); uerr != nil {
				logging.StoreError("stored doc at %s unreadable, replacing: %v", key, uerr)
				doc = map[string]json.RawMessage{}
			}
		case errors.Is(err, redis.Nil):
			// first save for this key
		default:
			return fmt.Errorf("failed to read document: %w", err)
		}

		for k, v := range keys {
			doc[k] = v
		}
		ts, err := json.Marshal(time.Now().UTC())
		if err != nil {
			return err
		}
		doc["last_saved"] = ts

		merged, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, merged, 0)
			return nil
		})
		return err
	}, key)
}

// SaveState merges the snapshot's state keys into the stored document.
func (s *RedisStore) SaveState(ctx context.Context, snap Snapshot) error {
	keys := map[string]json.RawMessage{}
	for k, v := range map[string]any{
		"chat_history": snap.ChatHistory,
		"unit_data":    snap.Locations,
		"objectives":   snap.Ledger,
		"scores":       snap.Scores,
		"mission_time": snap.Clock,
	} {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", k, err)
		}
		keys[k] = raw
	}
	return s.mergeDoc(ctx, snap.Identity, snap.Scenario, keys)
}

// SaveAAR merges only the after-action report into the stored document.
func (s *RedisStore) SaveAAR(ctx context.Context, identity, scenario, report string) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return s.mergeDoc(ctx, identity, scenario, map[string]json.RawMessage{"aar_report": raw})
}

// Load returns the stored snapshot, or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, identity, scenario string) (Snapshot, error) {
	raw, err := s.client.Get(ctx, stateKey(identity, scenario)).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read document: %w", err)
	}

	snap := Snapshot{Identity: identity, Scenario: scenario}
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("stored document unreadable: %w", err)
	}
	snap.Identity = identity
	snap.Scenario = scenario
	return snap, nil
}

// Delete removes the stored document.
func (s *RedisStore) Delete(ctx context.Context, identity, scenario string) error {
	if err := s.client.Del(ctx, stateKey(identity, scenario)).Err(); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}
