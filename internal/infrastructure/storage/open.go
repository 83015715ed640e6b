package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"homesvc.app/client/internal/core/ports"
)

// Supported storage backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a storage backend
type Options struct {
	Backend  string
	Dir      string
	RedisURL string
}

// Open creates the configured backend
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (ports.KeyValueStorage, error) {
	logger = logger.With().Str("component", "storage").Str("backend", opts.Backend).Logger()

	switch opts.Backend {
	case BackendFile, "":
		s, err := NewFileStorage(opts.Dir)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", s.Path()).Msg("using encrypted file storage")
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLiteStorage(ctx, opts.Dir)
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("dir", opts.Dir).Msg("using sqlite storage")
		return s, nil
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, fmt.Errorf("redis storage requires a redis url")
		}
		s, err := OpenRedisStorage(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Debug().Msg("using redis storage")
		return s, nil
	case BackendMemory:
		logger.Warn().Msg("using in-memory storage, the session will not survive restarts")
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
