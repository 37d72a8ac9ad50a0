// Package redis implements the bin average repository on Redis hashes and
// sorted sets.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"binstatus/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Client is the subset of the go-redis API the repository uses.
type Client interface {
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...*redis.Z) *redis.IntCmd
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Repository keeps each bin in a hash at <binsPrefix>:<binId> and its
// reports in a sorted set at <reportsPrefix>:<binId> scored by creation time.
type Repository struct {
	client        Client
	binsPrefix    string
	reportsPrefix string
}

// New creates a Repository. The prefixes play the role of table names.
func New(client Client, binsPrefix, reportsPrefix string) (*Repository, error) {
	if binsPrefix == "" {
		return nil, &domain.ConfigurationError{Key: "TRASH_BINS_TABLE", Msg: "key prefix is required"}
	}
	if reportsPrefix == "" {
		return nil, &domain.ConfigurationError{Key: "STATUS_REPORTS_TABLE", Msg: "key prefix is required"}
	}
	return &Repository{client: client, binsPrefix: binsPrefix, reportsPrefix: reportsPrefix}, nil
}

// Ensure interfaces are met.
var _ domain.AverageRepository = (*Repository)(nil)

// UpdateStatus reads the bin hash, folds status in and writes it back.
// Last writer wins.
func (r *Repository) UpdateStatus(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	key := r.binsPrefix + ":" + id.String()

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return &domain.StorageError{Op: "get bin", Err: err}
	}

	cur, count, err := parseBin(fields)
	if err != nil {
		return &domain.StorageError{Op: "decode bin", Err: err}
	}

	next := domain.NextAverage(cur, count, status.Int())
	if err := r.client.HSet(ctx, key,
		"binId", id.String(),
		"status", next,
		"lastUpdated", at.UTC().Format(time.RFC3339Nano),
		"reportsCount", count+1,
	).Err(); err != nil {
		return &domain.StorageError{Op: "update bin", Err: err}
	}

	avg := domain.ClampFillLevel(next)
	log.Debug().Str("bin_id", id.String()).Stringer("average", avg).Str("category", avg.Category()).Msg("bin average updated")
	return nil
}

// AddReport adds one report member to the bin's report set.
func (r *Repository) AddReport(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	at = at.UTC()
	member, err := json.Marshal(struct {
		BinID     string `json:"binId"`
		CreatedAt string `json:"createdAt"`
		Status    int    `json:"status"`
	}{id.String(), at.Format(time.RFC3339Nano), status.Int()})
	if err != nil {
		return &domain.StorageError{Op: "encode report", Err: err}
	}

	if err := r.client.ZAdd(ctx, r.reportsPrefix+":"+id.String(), &redis.Z{
		Score:  float64(at.UnixNano()),
		Member: string(member),
	}).Err(); err != nil {
		return &domain.StorageError{Op: "add report", Err: err}
	}
	return nil
}

// parseBin reads status and reportsCount; an empty hash is a new bin.
func parseBin(fields map[string]string) (status, count int, err error) {
	if v, ok := fields["status"]; ok {
		if status, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("status: %w", err)
		}
	}
	if v, ok := fields["reportsCount"]; ok {
		if count, err = strconv.Atoi(v); err != nil {
			return 0, 0, fmt.Errorf("reportsCount: %w", err)
		}
	}
	return status, count, nil
}
