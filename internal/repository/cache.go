package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/uma-arai/casa25-portal/internal/model"
	"go.uber.org/zap"
)

// ローカルキャッシュのキーです
const (
	VersionKey     = "casa25_version"
	ReservationKey = "casa25_reservation"
)

// ErrCacheMiss はキーが存在しないことを表します
var ErrCacheMiss = errors.New("cache miss")

// KVStore は端末上の永続キーバリューストアです
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
	Close() error
}

// MigrationStrategy はキャッシュのバージョンが一致しないときの移行方法です
type MigrationStrategy interface {
	Name() string
	Migrate(ctx context.Context, store KVStore, from, to string) error
}

// WipeOnMismatch はキャッシュを全て削除して新しいバージョンを書き込みます
type WipeOnMismatch struct{}

func (WipeOnMismatch) Name() string { return "wipe-on-mismatch" }

func (WipeOnMismatch) Migrate(ctx context.Context, store KVStore, from, to string) error {
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return store.Put(ctx, VersionKey, []byte(to))
}

// MigrationStep は保存済みの予約JSONを次のバージョンの形式に変換します
type MigrationStep func(raw []byte) ([]byte, error)

// ChainMigration はバージョンごとの変換を順に適用します
// 経路がない場合や変換に失敗した場合はWipeOnMismatchにフォールバックします
type ChainMigration struct {
	// Steps は移行元バージョンから (移行先バージョン, 変換) への対応です
	Steps map[string]ChainStep
}

// ChainStep は1つ先のバージョンへの変換です
type ChainStep struct {
	To    string
	Apply MigrationStep
}

func (ChainMigration) Name() string { return "chain" }

func (m ChainMigration) Migrate(ctx context.Context, store KVStore, from, to string) error {
	raw, err := store.Get(ctx, ReservationKey)
	if errors.Is(err, ErrCacheMiss) {
		return WipeOnMismatch{}.Migrate(ctx, store, from, to)
	}
	if err != nil {
		return err
	}

	current := from
	for steps := 0; current != to; steps++ {
		step, ok := m.Steps[current]
		if !ok || steps > len(m.Steps) {
			return WipeOnMismatch{}.Migrate(ctx, store, from, to)
		}
		if raw, err = step.Apply(raw); err != nil {
			return WipeOnMismatch{}.Migrate(ctx, store, from, to)
		}
		current = step.To
	}

	if err := store.Put(ctx, ReservationKey, raw); err != nil {
		return err
	}
	return store.Put(ctx, VersionKey, []byte(to))
}

// SnapshotStore はバージョン管理された予約スナップショットのキャッシュです
type SnapshotStore struct {
	store    KVStore
	codec    model.Codec
	version  string
	strategy MigrationStrategy
	logger   *zap.SugaredLogger
}

// NewSnapshotStore は新しいSnapshotStoreを作成します
// strategyがnilの場合はWipeOnMismatchを使います
func NewSnapshotStore(store KVStore, codec model.Codec, version string, strategy MigrationStrategy, logger *zap.SugaredLogger) *SnapshotStore {
	if strategy == nil {
		strategy = WipeOnMismatch{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SnapshotStore{
		store:    store,
		codec:    codec,
		version:  version,
		strategy: strategy,
		logger:   logger,
	}
}

// Open は保存済みのバージョンを確認し、一致しなければ移行を実行します
func (s *SnapshotStore) Open(ctx context.Context) error {
	stored, err := s.store.Get(ctx, VersionKey)
	switch {
	case errors.Is(err, ErrCacheMiss):
		stored = nil
	case err != nil:
		return fmt.Errorf("failed to read cache version: %w", err)
	}

	if string(stored) == s.version {
		return nil
	}

	s.logger.Infow("Cache version mismatch, migrating",
		"from", string(stored), "to", s.version, "strategy", s.strategy.Name())
	if err := s.strategy.Migrate(ctx, s.store, string(stored), s.version); err != nil {
		return fmt.Errorf("failed to migrate cache with %s: %w", s.strategy.Name(), err)
	}
	return nil
}

// Load は保存済みの予約を返します
// 存在しない場合はErrCacheMiss、日付が壊れている場合はErrCorruptStateを返します
func (s *SnapshotStore) Load(ctx context.Context) (model.Reservation, error) {
	raw, err := s.store.Get(ctx, ReservationKey)
	if err != nil {
		return model.NewReservation(), err
	}
	r, err := s.codec.Decode(raw)
	if err != nil {
		if !errors.Is(err, model.ErrCorruptState) {
			err = fmt.Errorf("%w: %v", model.ErrCorruptState, err)
		}
		return model.NewReservation(), err
	}
	return r, nil
}

// Save は予約全体を保存します
func (s *SnapshotStore) Save(ctx context.Context, r model.Reservation) error {
	raw, err := s.codec.Encode(r)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, ReservationKey, raw); err != nil {
		return fmt.Errorf("failed to write reservation to cache: %w", err)
	}
	return nil
}

// Close は下位のストアを閉じます
func (s *SnapshotStore) Close() error {
	return s.store.Close()
}
