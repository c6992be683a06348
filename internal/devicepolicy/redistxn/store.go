// Package redistxn layers a Redis-backed processed-transaction idempotency
// set onto any devicepolicy.Repository. It is the one piece of repository
// state whose durability across process restarts matters most for
// idempotency, independent of whether the rest of the repository is
// in-memory or Postgres-backed — so it is wired as a decorator rather than a
// full standalone Repository implementation.
package redistxn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetops/devicepolicy/internal/devicepolicy"
)

// keyTTL bounds how long a processed transaction id is remembered. It is
// generous relative to any plausible retry window a billing system would use.
const keyTTL = 30 * 24 * time.Hour

// Repository wraps a base devicepolicy.Repository, overriding MarkTxn and
// HasTxn to use Redis and delegating every other method unchanged.
type Repository struct {
	devicepolicy.Repository
	client *redis.Client
}

// New creates a Repository that layers Redis-backed idempotency tracking
// onto base.
func New(base devicepolicy.Repository, client *redis.Client) *Repository {
	return &Repository{Repository: base, client: client}
}

func (r *Repository) key(id string) string {
	return "devicepolicy:txn:" + id
}

func (r *Repository) MarkTxn(ctx context.Context, id string) error {
	if err := r.client.Set(ctx, r.key(id), "1", keyTTL).Err(); err != nil {
		return fmt.Errorf("marking transaction processed in redis: %w", err)
	}
	return nil
}

func (r *Repository) HasTxn(ctx context.Context, id string) (bool, error) {
	_, err := r.client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking processed transaction in redis: %w", err)
	}
	return true, nil
}
