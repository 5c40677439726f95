// Package badgerdb opens the embedded key-value store that holds a device's
// records and identity.
package badgerdb

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// Config controls how the local database is opened.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// SyncWrites fsyncs every commit. A write reported as successful must
	// survive a crash, so production keeps this on.
	SyncWrites bool

	// GCInterval is how often the value log is compacted. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// DefaultConfig returns the settings used on a device.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// zerologAdapter satisfies badger.Logger.
type zerologAdapter struct {
	logger zerolog.Logger
}

func (l zerologAdapter) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l zerologAdapter) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

func (l zerologAdapter) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l zerologAdapter) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msgf(format, args...)
}

// DB wraps a badger instance and its background value-log GC.
type DB struct {
	*badger.DB

	logger    zerolog.Logger
	stopGC    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
}

// Open opens (creating if needed) the database described by cfg. Badger's
// own log output is routed through logger.
func Open(cfg Config, logger zerolog.Logger) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badgerdb: path is required for a persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	logger = logger.With().Str("component", "badger").Logger()
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(zerologAdapter{logger: logger})

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	db := &DB{DB: bdb, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		db.stopGC = make(chan struct{})
		db.gcDone = make(chan struct{})
		go db.runGC(cfg.GCInterval, ratio)
	}
	return db, nil
}

func (d *DB) runGC(interval time.Duration, ratio float64) {
	defer close(d.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopGC:
			return
		case <-ticker.C:
			err := d.RunValueLogGC(ratio)
			switch {
			case err == nil:
				d.logger.Debug().Msg("value log GC completed")
			case !errors.Is(err, badger.ErrNoRewrite):
				d.logger.Warn().Err(err).Msg("value log GC failed")
			}
		}
	}
}

// Close stops GC and closes the database. Safe to call more than once.
func (d *DB) Close() error {
	var err error
	d.closeOnce.Do(func() {
		if d.stopGC != nil {
			close(d.stopGC)
			<-d.gcDone
		}
		err = d.DB.Close()
	})
	return err
}

// Get returns the value stored at key, or badger.ErrKeyNotFound.
func (d *DB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := d.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Set writes value at key in its own transaction.
func (d *DB) Set(key, value []byte) error {
	return d.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Scan calls fn with a copy of every value whose key starts with prefix, in
// key order. Returning an error from fn stops the scan.
func (d *DB) Scan(prefix []byte, fn func(key, value []byte) error) error {
	return d.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), val); err != nil {
				return err
			}
		}
		return nil
	})
}
