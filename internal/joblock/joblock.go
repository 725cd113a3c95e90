package joblock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "joblock:wallet:"

// releaseScript deletes the lock only when it is still held by the caller,
// so a lock that expired and was re-acquired elsewhere is never released by
// the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes tier-maintenance jobs per wallet. Snapshot and archive
// passes for the same wallet must never run concurrently; the lock's TTL
// bounds how long a crashed run can block the wallet.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Locker with the given lease duration.
func New(client *redis.Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Acquire attempts to take the wallet's lock. It returns a release function
// and true on success, or false when another holder has the lock.
func (l *Locker) Acquire(ctx context.Context, walletID string) (func(), bool, error) {
	key := keyPrefix + walletID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire wallet lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, true, nil
}
