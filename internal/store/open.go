package store

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindBadger = "badger"
)

// Open returns the backend named by kind rooted at path. For the file
// backend path is the state file; for badger it is the database directory.
func Open(kind, path string, logger hclog.Logger) (Backend, error) {
	switch kind {
	case "", KindFile:
		return NewFileBackend(path, logger), nil
	case KindBadger:
		b, err := NewBadgerBackend(path, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", kind)
	}
}
