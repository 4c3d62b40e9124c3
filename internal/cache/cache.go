// Package cache keeps remote responses between runs, keyed by request content.
package cache

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/properties"
)

const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendNone   = "none"
)

type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T) error
}

// Entry wraps the encoded data with a checksum of those exact bytes so truncated
// or edited entries read as misses.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	Checksum  string          `json:"checksum"`
}

func encodeEntry(data any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache data: %w", err)
	}
	entry, err := json.Marshal(Entry{Data: raw, CreatedAt: now, Checksum: checksum(raw)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return entry, nil
}

// decodeEntry verifies the checksum against the stored bytes before decoding.
// Numbers decode as json.Number, the same form the remote client produces.
func decodeEntry[T any](raw []byte) (T, bool) {
	var zero T
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return zero, false
	}
	if len(entry.Data) == 0 || checksum(entry.Data) != entry.Checksum {
		return zero, false
	}

	var data T
	decoder := json.NewDecoder(bytes.NewReader(entry.Data))
	decoder.UseNumber()
	if err := decoder.Decode(&data); err != nil {
		return zero, false
	}
	return data, true
}

func checksum(raw []byte) string {
	hash := md5.Sum(raw)
	return hex.EncodeToString(hash[:])
}

// Key hashes its parameters. Structs and maps are hashed by their JSON form.
func Key(params ...any) string {
	h := sha1.New()
	for _, param := range params {
		switch p := param.(type) {
		case string:
			h.Write([]byte(p))
		default:
			raw, err := json.Marshal(p)
			if err != nil {
				raw = []byte(fmt.Sprintf("%v", p))
			}
			h.Write(raw)
		}
		h.Write([]byte{'_'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Noop never hits.
type Noop[T any] struct{}

func (Noop[T]) Get(string) (T, bool) {
	var zero T
	return zero, false
}

func (Noop[T]) Set(string, T) error { return nil }

// New builds the configured backend for one namespace. Badger caches share the
// database opened by OpenBadger.
func New[T any](backend, namespace string) (Cache[T], error) {
	switch backend {
	case BackendFile, "":
		return NewFileCache[T](properties.DataPath("cache", namespace)), nil
	case BackendBadger:
		db, err := OpenBadger(properties.DataPath("cache", "badger"))
		if err != nil {
			return nil, err
		}
		return NewBadgerCache[T](db, namespace)
	case BackendNone:
		return Noop[T]{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
