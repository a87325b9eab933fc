package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"
	"github.com/hashicorp/go-hclog"
)

// Key prefixes for the badger layout. Each record is stored under its own
// key so the directory stays inspectable with badger tooling.
const (
	credPrefix = "cred/"
	saltPrefix = "salt/"
	sessPrefix = "sess/"
	metaKey    = "meta/initialized"
)

// BadgerBackend stores the state in an embedded badger database.
type BadgerBackend struct {
	db  *badger.DB
	log hclog.Logger
}

// NewBadgerBackend opens (or creates) a badger database in dir.
func NewBadgerBackend(dir string, logger hclog.Logger) (*BadgerBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = true
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	logger.Debug("badger state store opened", "dir", dir)
	return &BadgerBackend{db: db, log: logger}, nil
}

// Load rebuilds the state from the three key prefixes.
func (b *BadgerBackend) Load(_ context.Context) (*State, error) {
	st := NewState()
	initialized := false

	err := b.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(metaKey)); err == nil {
			initialized = true
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		targets := map[string]map[string]string{
			credPrefix: st.UserCreds,
			saltPrefix: st.Salts,
			sessPrefix: st.Sessions,
		}
		for prefix, dst := range targets {
			if err := scanPrefix(txn, prefix, dst); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: load state: %w", err)
	}
	if !initialized {
		return nil, ErrNotFound
	}
	return st, nil
}

func scanPrefix(txn *badger.Txn, prefix string, dst map[string]string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		dst[strings.TrimPrefix(string(item.Key()), prefix)] = string(value)
	}
	return nil
}

// Save replaces the stored key set with st in a single transaction.
func (b *BadgerBackend) Save(_ context.Context, st *State) error {
	want := make(map[string][]byte, len(st.UserCreds)+len(st.Salts)+len(st.Sessions)+1)
	for u, h := range st.UserCreds {
		want[credPrefix+u] = []byte(h)
	}
	for u, s := range st.Salts {
		want[saltPrefix+u] = []byte(s)
	}
	for tok, u := range st.Sessions {
		want[sessPrefix+tok] = []byte(u)
	}
	want[metaKey] = []byte("1")

	err := b.db.Update(func(txn *badger.Txn) error {
		stale, err := staleKeys(txn, want)
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for k, v := range want {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: save state: %w", err)
	}
	return nil
}

// staleKeys lists stored record keys that are absent from want.
func staleKeys(txn *badger.Txn, want map[string][]byte) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var stale [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		if bytes.Equal(key, []byte(metaKey)) {
			continue
		}
		if _, ok := want[string(key)]; !ok {
			stale = append(stale, key)
		}
	}
	return stale, nil
}

// Close closes the database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// badgerLogger adapts hclog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger hclog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
