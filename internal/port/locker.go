package port

import (
	"context"
	"time"
)

type Locker interface {
	// TryAcquire takes key for at most lease and returns the holder token,
	// or false if someone else holds it
	TryAcquire(ctx context.Context, key string, lease time.Duration) (token string, ok bool, err error)

	// Release gives the key back if token still holds it
	Release(ctx context.Context, key, token string) error
}
