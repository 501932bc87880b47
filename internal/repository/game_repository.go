package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/ShawnEdgell/gfn-availability-go/internal/curator"
	"github.com/ShawnEdgell/gfn-availability-go/internal/database"
)

const (
	GamesKey       = "gfn:games"
	LastUpdatedKey = "gfn:last_updated"
	SourcesKey     = "gfn:sources"
)

// GameRepository mirrors the games database into Redis so that a fresh
// install can start from the last dataset another instance fetched.
type GameRepository struct {
	rdb *redis.Client
}

func NewGameRepository(rdb *redis.Client) *GameRepository {
	if rdb == nil {
		slog.Error("Redis client is nil in NewGameRepository. Mirror calls will fail.")
	}
	return &GameRepository{rdb: rdb}
}

// Client returns the underlying Redis client.
func (r *GameRepository) Client() *redis.Client {
	return r.rdb
}

// Ping checks the Redis connection.
func (r *GameRepository) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// SaveSnapshot replaces the mirrored dataset in a single MULTI/EXEC transaction.
func (r *GameRepository) SaveSnapshot(ctx context.Context, snap *database.Snapshot) error {
	sourcesJSON, err := json.Marshal(snap.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	fields := make([]any, 0, len(snap.Games)*2)
	for appID, rec := range snap.Games {
		flag := "0"
		if rec.Available {
			flag = "1"
		}
		fields = append(fields, appID, flag)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, GamesKey)
	if len(fields) > 0 {
		pipe.HSet(ctx, GamesKey, fields...)
	}
	pipe.Set(ctx, LastUpdatedKey, snap.LastUpdated, 0)
	pipe.Set(ctx, SourcesKey, sourcesJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute Redis pipeline for games snapshot: %w", err)
	}
	slog.Debug("Mirrored games database to Redis", "count", len(snap.Games), "last_updated", snap.LastUpdated)
	return nil
}

// LoadSnapshot reads the mirrored dataset. It returns nil, nil when nothing was mirrored yet.
func (r *GameRepository) LoadSnapshot(ctx context.Context) (*database.Snapshot, error) {
	lastUpdated, err := r.rdb.Get(ctx, LastUpdatedKey).Result()
	if errors.Is(err, redis.Nil) {
		slog.Info("No games snapshot mirrored in Redis", "key", LastUpdatedKey)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last updated timestamp from Redis: %w", err)
	}

	raw, err := r.rdb.HGetAll(ctx, GamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get games from Redis: %w", err)
	}
	games := make(map[string]curator.GameRecord, len(raw))
	for appID, flag := range raw {
		games[appID] = curator.GameRecord{AppID: appID, Available: flag == "1"}
	}

	var sources []curator.Source
	sourcesJSON, err := r.rdb.Get(ctx, SourcesKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, fmt.Errorf("failed to get sources from Redis: %w", err)
	default:
		if err := json.Unmarshal([]byte(sourcesJSON), &sources); err != nil {
			slog.Warn("Failed to unmarshal mirrored sources, ignoring them", "key", SourcesKey, "error", err)
			sources = nil
		}
	}

	return &database.Snapshot{
		Games:       games,
		Sources:     sources,
		LastUpdated: lastUpdated,
	}, nil
}
