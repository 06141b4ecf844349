// Package redisstore keeps identities in Redis: one hash per identity plus a
// sorted set that records insertion order.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

func init() {
	database.RegisterBackend("redis", Open)
}

// Store implements database.Store on a Redis server.
type Store struct {
	client *redis.Client
	prefix string
	dim    int
	logger *zap.Logger

	// afterRead runs inside Update between the watched read and the write.
	afterRead func()
}

// Open parses cfg.Redis.URL, pings the server and returns the store.
func Open(ctx context.Context, cfg *config.StoreConfig, logger *zap.Logger) (database.Store, error) {
	if cfg == nil || cfg.Redis.URL == "" {
		return nil, errors.New("REDIS_URL is required for the redis store")
	}
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return New(client, cfg.Redis.Prefix, cfg.EmbeddingDim, logger), nil
}

// New wraps an existing client. Keys are namespaced under prefix.
func New(client *redis.Client, prefix string, dim int, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, prefix: prefix, dim: dim, logger: logger}
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) identityKey(name string) string { return s.prefix + "identity:" + name }
func (s *Store) orderKey() string               { return s.prefix + "identities" }
func (s *Store) seqKey() string                 { return s.prefix + "seq" }

func (s *Store) fields(identity database.StoredIdentity) (map[string]any, error) {
	if s.dim > 0 && len(identity.Embedding) != s.dim {
		return nil, fmt.Errorf("embedding has %d dimensions, store expects %d", len(identity.Embedding), s.dim)
	}
	blob, err := database.EncodeEmbedding(identity.Embedding)
	if err != nil {
		return nil, err
	}
	sources := identity.ImageSources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("marshal image sources: %w", err)
	}
	return map[string]any{
		"name":          identity.Name,
		"embedding":     blob,
		"description":   identity.Description,
		"affiliation":   identity.Affiliation,
		"image_sources": string(sourcesJSON),
		"image_count":   identity.ImageCount,
		"updated_at":    identity.UpdatedAt.UTC().Format(dateLayout),
	}, nil
}

// Get returns the identity called name, or nil when absent.
func (s *Store) Get(ctx context.Context, name string) (*database.StoredIdentity, error) {
	values, err := s.client.HGetAll(ctx, s.identityKey(name)).Result()
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return parseIdentity(values)
}

// List returns every identity ordered by first insertion.
func (s *Store) List(ctx context.Context) ([]database.StoredIdentity, error) {
	names, err := s.client.ZRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list identity names: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, len(names))
	for i, name := range names {
		cmds[i] = pipe.HGetAll(ctx, s.identityKey(name))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}

	identities := make([]database.StoredIdentity, 0, len(names))
	for i, cmd := range cmds {
		values := cmd.Val()
		if len(values) == 0 {
			s.logger.Warn("identity listed without a record", zap.String("name", names[i]))
			continue
		}
		identity, err := parseIdentity(values)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *identity)
	}
	return identities, nil
}

// Count returns the number of identities.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.orderKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return int(n), nil
}

// Upsert replaces the record for identity.Name. A new name is appended to
// the insertion order; an existing one keeps its position.
func (s *Store) Upsert(ctx context.Context, identity database.StoredIdentity) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	fields, err := s.fields(identity)
	if err != nil {
		return err
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("allocate sequence: %w", err)
	}

	key := s.identityKey(identity.Name)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.ZAddNX(ctx, s.orderKey(), &redis.Z{Score: float64(seq), Member: identity.Name})
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}
	return nil
}

// Update applies upd to the identity called name under optimistic locking
// on both the old and new keys.
func (s *Store) Update(ctx context.Context, name string, upd database.IdentityUpdate) (bool, error) {
	if err := upd.Validate(); err != nil {
		return false, err
	}

	oldKey := s.identityKey(name)
	newKey := s.identityKey(upd.Name)
	var found bool

	txf := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, oldKey).Result()
		if err != nil {
			return err
		}
		if len(values) == 0 {
			found = false
			return nil
		}
		current, err := parseIdentity(values)
		if err != nil {
			return err
		}

		if upd.Name != name {
			exists, err := tx.Exists(ctx, newKey).Result()
			if err != nil {
				return err
			}
			if exists > 0 {
				return database.ErrConflict
			}
		}
		if s.afterRead != nil {
			s.afterRead()
		}
		score, err := tx.ZScore(ctx, s.orderKey(), name).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		fields, err := s.fields(upd.Apply(*current))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if upd.Name != name {
				pipe.Del(ctx, oldKey)
				pipe.ZRem(ctx, s.orderKey(), name)
			}
			pipe.Del(ctx, newKey)
			pipe.HSet(ctx, newKey, fields)
			pipe.ZAdd(ctx, s.orderKey(), &redis.Z{Score: score, Member: upd.Name})
			return nil
		})
		if err == nil {
			found = true
		}
		return err
	}

	err := s.client.Watch(ctx, txf, oldKey, newKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Another writer touched the record between read and write.
		return false, fmt.Errorf("update identity %q: %w", name, database.ErrConcurrentWrite)
	}
	if errors.Is(err, database.ErrConflict) {
		return false, err
	}
	if err != nil {
		return false, fmt.Errorf("update identity: %w", err)
	}
	return found, nil
}

// Delete removes the identity called name.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.identityKey(name))
		pipe.ZRem(ctx, s.orderKey(), name)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete identity: %w", err)
	}
	return del.Val() > 0, nil
}

func parseIdentity(values map[string]string) (*database.StoredIdentity, error) {
	identity := database.StoredIdentity{
		Name:        values["name"],
		Description: values["description"],
		Affiliation: values["affiliation"],
	}

	embedding, err := database.DecodeEmbedding([]byte(values["embedding"]))
	if err != nil {
		return nil, fmt.Errorf("identity %q: %w", identity.Name, err)
	}
	identity.Embedding = embedding

	if err := json.Unmarshal([]byte(values["image_sources"]), &identity.ImageSources); err != nil {
		return nil, fmt.Errorf("identity %q: unmarshal image sources: %w", identity.Name, err)
	}
	if identity.ImageCount, err = strconv.Atoi(values["image_count"]); err != nil {
		return nil, fmt.Errorf("identity %q: invalid image count: %w", identity.Name, err)
	}
	if identity.UpdatedAt, err = time.Parse(dateLayout, values["updated_at"]); err != nil {
		return nil, fmt.Errorf("identity %q: invalid updated_at: %w", identity.Name, err)
	}
	return &identity, nil
}
