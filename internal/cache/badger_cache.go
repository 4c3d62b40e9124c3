package cache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
)

var (
	badgerMu  sync.Mutex
	badgerDBs = make(map[string]*badger.DB)
)

// OpenBadger opens the database in dir once per process.
func OpenBadger(dir string) (*badger.DB, error) {
	badgerMu.Lock()
	defer badgerMu.Unlock()

	if db, ok := badgerDBs[dir]; ok {
		return db, nil
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}
	badgerDBs[dir] = db
	return db, nil
}

// CloseBadger closes every database opened by OpenBadger.
func CloseBadger() error {
	badgerMu.Lock()
	defer badgerMu.Unlock()

	var errs []error
	for dir, db := range badgerDBs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", dir, err))
		}
		delete(badgerDBs, dir)
	}
	return errors.Join(errs...)
}

// BadgerCache stores zstd-compressed JSON entries under a namespace prefix.
type BadgerCache[T any] struct {
	db      *badger.DB
	prefix  []byte
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewBadgerCache[T any](db *badger.DB, namespace string) (*BadgerCache[T], error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	return &BadgerCache[T]{
		db:      db,
		prefix:  []byte(namespace + "/"),
		encoder: encoder,
		decoder: decoder,
	}, nil
}

func (bc *BadgerCache[T]) Get(key string) (T, bool) {
	var zero T
	var compressed []byte
	err := bc.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bc.key(key))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return zero, false
	}

	raw, err := bc.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return zero, false
	}
	return decodeEntry[T](raw)
}

func (bc *BadgerCache[T]) Set(key string, data T) error {
	raw, err := encodeEntry(data, time.Now())
	if err != nil {
		return err
	}
	compressed := bc.encoder.EncodeAll(raw, make([]byte, 0, len(raw)))

	if err := bc.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bc.key(key), compressed)
	}); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (bc *BadgerCache[T]) key(key string) []byte {
	return append(append([]byte{}, bc.prefix...), key...)
}
