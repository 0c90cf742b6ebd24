package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store on a Redis client. Transactions are queued on a
// TxPipeline, so the server receives them as one MULTI/EXEC block and applies
// the operations in submission order with no interleaving from other clients.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing Redis client. The caller configures the client;
// Close closes it.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Ping verifies connectivity. Used by health checks.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Tx() Tx {
	return &redisTx{pipe: s.client.TxPipeline()}
}

func (s *Redis) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return s.client.ExpireAt(ctx, key, at).Err()
}

func (s *Redis) Close() error {
	return s.client.Close()
}

// redisTx records the typed command handles returned by the pipeline so Exec
// can translate each reply into a Result at its submission position.
type redisTx struct {
	pipe redis.Pipeliner
	cmds []redis.Cmder
	done bool
}

// Queued commands carry a background context; the context passed to Exec is
// the one that governs the round trip.

func (t *redisTx) Get(key string) {
	t.cmds = append(t.cmds, t.pipe.Get(context.Background(), key))
}

func (t *redisTx) Set(key string, value int64) {
	t.cmds = append(t.cmds, t.pipe.Set(context.Background(), key, value, 0))
}

func (t *redisTx) ExpireAt(key string, at time.Time) {
	t.cmds = append(t.cmds, t.pipe.ExpireAt(context.Background(), key, at))
}

func (t *redisTx) RenameNX(src, dst string) {
	t.cmds = append(t.cmds, t.pipe.RenameNX(context.Background(), src, dst))
}

func (t *redisTx) Incr(key string) {
	t.cmds = append(t.cmds, t.pipe.Incr(context.Background(), key))
}

func (t *redisTx) TTL(key string) {
	t.cmds = append(t.cmds, t.pipe.TTL(context.Background(), key))
}

func (t *redisTx) Exec(ctx context.Context) ([]Result, error) {
	if t.done {
		return nil, errTxReused
	}
	t.done = true

	// Exec surfaces redis.Nil when any GET in the batch hit a missing key;
	// that is an expected outcome, not a transport failure.
	if _, err := t.pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	results := make([]Result, 0, len(t.cmds))
	for _, cmd := range t.cmds {
		res, err := translate(cmd)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// translate converts one executed command into the backend-neutral Result.
func translate(cmd redis.Cmder) (Result, error) {
	switch c := cmd.(type) {
	case *redis.StringCmd: // GET
		if c.Err() == redis.Nil {
			return Result{}, nil
		}
		if c.Err() != nil {
			return Result{}, c.Err()
		}
		n, err := strconv.ParseInt(c.Val(), 10, 64)
		if err != nil {
			return Result{}, fmt.Errorf("non-integer counter value %q: %w", c.Val(), err)
		}
		return Result{Value: n, OK: true}, nil

	case *redis.StatusCmd: // SET
		if c.Err() != nil {
			return Result{}, c.Err()
		}
		return Result{OK: true}, nil

	case *redis.BoolCmd: // EXPIREAT, RENAMENX
		if c.Err() != nil && c.Err() != redis.Nil {
			return Result{}, c.Err()
		}
		return Result{OK: c.Val()}, nil

	case *redis.IntCmd: // INCR
		if c.Err() != nil {
			return Result{}, c.Err()
		}
		return Result{Value: c.Val(), OK: true}, nil

	case *redis.DurationCmd: // TTL
		if c.Err() != nil {
			return Result{}, c.Err()
		}
		return Result{Value: ttlSeconds(c.Val()), OK: true}, nil
	}
	return Result{}, fmt.Errorf("unexpected command reply %T", cmd)
}

// ttlSeconds converts a TTL reply to whole seconds, preserving the -1/-2
// sentinels, which go-redis reports unscaled.
func ttlSeconds(d time.Duration) int64 {
	switch d {
	case time.Duration(TTLNone), time.Duration(TTLNone) * time.Second:
		return TTLNone
	case time.Duration(TTLMissing), time.Duration(TTLMissing) * time.Second:
		return TTLMissing
	}
	return int64((d + time.Second - 1) / time.Second)
}
