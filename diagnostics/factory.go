package diagnostics

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/lessonpipe/config"
	"github.com/BaSui01/lessonpipe/internal/cache"
	"github.com/BaSui01/lessonpipe/internal/database"
)

// Open creates the stores listed in cfg.Diagnostics.Backends. The returned
// MultiStore owns every connection it opened; Close releases them.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*MultiStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dc := cfg.Diagnostics
	m := NewMultiStore()

	for _, backend := range dc.Backends {
		t := StoreType(strings.ToLower(strings.TrimSpace(backend)))
		if t == "none" || t == "" {
			continue
		}
		store, err := openBackend(ctx, m, t, cfg, logger)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("diagnostics backend %q: %w", backend, err)
		}
		m.stores = append(m.stores, store)
	}

	logger.Info("diagnostics stores configured", zap.String("stores", m.Name()))
	return m, nil
}

func openBackend(ctx context.Context, m *MultiStore, t StoreType, cfg *config.Config, logger *zap.Logger) (Store, error) {
	dc := cfg.Diagnostics
	switch t {
	case StoreTypeMemory:
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(dc.Dir)
	case StoreTypeRedis:
		mgr, err := cache.NewManager(cache.ConfigFrom(cfg.Redis, dc.TTL), logger)
		if err != nil {
			return nil, err
		}
		m.addCloser(mgr)
		return NewRedisStore(mgr, dc.KeyPrefix, dc.TTL), nil
	case StoreTypeGorm, "sql", "gorm":
		pool, err := database.Open(cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		m.addCloser(pool)
		return NewGormStore(pool, cfg.Database.AutoMigrate)
	case StoreTypeMongo, "mongodb":
		store, err := NewMongoStore(ctx, cfg.Mongo, dc.TTL, logger)
		if err != nil {
			return nil, err
		}
		m.addCloser(store)
		return store, nil
	case StoreTypeLog:
		return NewLogStore(logger, zap.InfoLevel), nil
	default:
		return nil, fmt.Errorf("unsupported diagnostics store type: %s", t)
	}
}
