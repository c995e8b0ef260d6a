package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uma-arai/casa25-portal/internal/common/config"
	"github.com/uma-arai/casa25-portal/internal/common/database"
	"github.com/uma-arai/casa25-portal/internal/common/logger"
	"github.com/uma-arai/casa25-portal/internal/model"
	"github.com/uma-arai/casa25-portal/internal/repository"
	"github.com/uma-arai/casa25-portal/internal/service/notice"
	"github.com/uma-arai/casa25-portal/internal/service/notification"
	"github.com/uma-arai/casa25-portal/internal/service/state"
	"go.uber.org/zap"
)

const (
	remoteMaxRetries = 3
	remoteRetryWait  = time.Second
)

// Components はポータルとバッチで共有する依存関係です
type Components struct {
	Codec     model.Codec
	Notices   *notice.Board
	Remote    repository.RemoteStore
	Weather   repository.WeatherRepository
	History   repository.NotificationRepository
	State     *state.Manager
	Scheduler *notification.Scheduler

	closers []func() error
}

// Build は設定に従って依存関係を組み立てます
// notifierがnilの場合、チェックアウト完了は通知しません
func Build(ctx context.Context, cfg *config.Config, zl *zap.Logger, notifier state.CompletionNotifier) (*Components, error) {
	c := &Components{
		Codec:   model.NewCodec(cfg.Location),
		Notices: notice.NewBoard(cfg.NoticeTTL),
	}

	kv, history, err := c.openBackend(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.History = history
	c.closers = append(c.closers, kv.Close)

	snapshots := repository.NewSnapshotStore(kv, c.Codec, cfg.Cache.Version, repository.WipeOnMismatch{}, logger.For(zl, logger.ComponentLocalCache))
	if err := snapshots.Open(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open local cache: %w", err)
	}

	c.Remote = repository.NewRemoteStore(cfg.Remote.Endpoint, cfg.Remote.Timeout, repository.WithRetry(remoteMaxRetries, remoteRetryWait))
	c.Weather = repository.NewWeatherRepository(repository.WeatherConfig{
		Endpoint:      cfg.Weather.Endpoint,
		Latitude:      cfg.Weather.Latitude,
		Longitude:     cfg.Weather.Longitude,
		RainThreshold: cfg.Weather.RainThreshold,
		Timezone:      cfg.Location.String(),
		Timeout:       cfg.Remote.Timeout,
	})

	opts := []state.Option{state.WithRemoteTimeout(cfg.Remote.Timeout)}
	if notifier != nil {
		opts = append(opts, state.WithCompletionNotifier(notifier))
	}
	c.State = state.NewManager(snapshots, c.Remote, c.Codec, c.Notices, logger.For(zl, logger.ComponentState), opts...)

	c.Scheduler = notification.NewScheduler(
		c.State,
		c.Notices,
		notification.WeatherRainRisk(c.Weather, logger.For(zl, logger.ComponentWeather)),
		c.History,
		cfg.Location,
		cfg.TickInterval,
		logger.For(zl, logger.ComponentScheduler),
	)
	return c, nil
}

// openBackend はローカルキャッシュの保存先を開きます
// PostgreSQLの場合は通知履歴も同じDBに保存します
func (c *Components) openBackend(ctx context.Context, cfg *config.Config) (repository.KVStore, repository.NotificationRepository, error) {
	switch cfg.Cache.Backend {
	case config.CacheBackendLevelDB:
		store, err := repository.NewLevelDBStore(cfg.Cache.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil

	case config.CacheBackendPostgres:
		conn, err := database.Open(cfg.DB)
		if err != nil {
			return nil, nil, err
		}
		db := repository.NewDB(conn)
		store := repository.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to prepare cache table: %w", err)
		}
		history := repository.NewNotificationRepository(db)
		if err := history.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to prepare notification history table: %w", err)
		}
		return store, history, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// Close はバックグラウンド処理を待ってから開いたリソースを閉じます
func (c *Components) Close() error {
	if c.State != nil {
		c.State.Wait()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
