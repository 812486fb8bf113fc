package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Store owns the current configuration snapshot. Every operation reads
// one immutable *Config via Current at its start; reloads swap the
// pointer atomically so in-flight operations are never torn.
type Store struct {
	v   *viper.Viper
	cur atomic.Pointer[Config]
	log *zap.Logger
}

// NewStore loads the configuration from path and returns a store holding
// it as the current snapshot.
func NewStore(path string, log *zap.Logger) (*Store, error) {
	cfg, v, err := load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{v: v, log: log}
	s.cur.Store(cfg)
	return s, nil
}

// Current returns the active configuration snapshot. The returned value
// must be treated as read-only.
func (s *Store) Current() *Config {
	return s.cur.Load()
}

// Watch begins watching the config file and swaps in a new snapshot on
// every valid change. Invalid edits are logged and the previous snapshot
// stays active.
func (s *Store) Watch() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		cfg := new(Config)
		if err := s.v.Unmarshal(cfg); err != nil {
			s.log.Error("config reload: unmarshal failed, keeping previous", zap.Error(err))
			return
		}
		if err := cfg.Validate(); err != nil {
			s.log.Error("config reload: validation failed, keeping previous", zap.Error(err))
			return
		}
		s.cur.Store(cfg)
		s.log.Info("config reloaded", zap.String("file", e.Name))
	})
	s.v.WatchConfig()
}

// Swap replaces the current snapshot directly. Used by tests and by
// callers that build configs programmatically.
func (s *Store) Swap(cfg *Config) {
	s.cur.Store(cfg)
}

// NewStaticStore wraps an already-built Config in a Store without file
// watching. Intended for tests.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{v: viper.New(), log: zap.NewNop()}
	s.cur.Store(cfg)
	return s
}
