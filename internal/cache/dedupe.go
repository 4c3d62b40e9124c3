package cache

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Deduplicated collapses concurrent loads of the same key into one call.
type Deduplicated[T any] struct {
	cache Cache[T]
	group singleflight.Group
}

func NewDeduplicated[T any](c Cache[T]) *Deduplicated[T] {
	if c == nil {
		c = Noop[T]{}
	}
	return &Deduplicated[T]{cache: c}
}

// GetOrLoad returns the cached value or calls load and stores its result.
// A failed store is logged and does not fail the load.
func (d *Deduplicated[T]) GetOrLoad(key string, load func() (T, error)) (T, error) {
	if data, ok := d.cache.Get(key); ok {
		return data, nil
	}

	v, err, _ := d.group.Do(key, func() (any, error) {
		if data, ok := d.cache.Get(key); ok {
			return data, nil
		}
		data, err := load()
		if err != nil {
			return data, err
		}
		if err := d.cache.Set(key, data); err != nil {
			logrus.WithError(err).WithField("key", key).Warn("failed to cache response")
		}
		return data, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to load %s: %w", key, err)
	}
	data, _ := v.(T)
	return data, nil
}
