package store

import (
	"context"
	"fmt"
)

// Open builds the backend named by the store_backend setting.
func Open(ctx context.Context, backend, dataDir, redisAddr string) (Store, error) {
	switch backend {
	case "", "file":
		return NewFileStore(dataDir)
	case "redis":
		return NewRedisStore(ctx, redisAddr)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
