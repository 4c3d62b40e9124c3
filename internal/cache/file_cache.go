package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileCache stores one JSON entry per key under a directory.
type FileCache[T any] struct {
	cacheDir string
}

func NewFileCache[T any](dir string) *FileCache[T] {
	return &FileCache[T]{
		cacheDir: dir,
	}
}

func (fc *FileCache[T]) Get(key string) (T, bool) {
	raw, err := os.ReadFile(fc.path(key))
	if err != nil {
		var zero T
		return zero, false
	}
	return decodeEntry[T](raw)
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	jsonData, err := encodeEntry(data, time.Now())
	if err != nil {
		return err
	}

	cacheFile := fc.path(key)
	tmpFile := cacheFile + ".tmp"
	if err := os.WriteFile(tmpFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}
	return nil
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.cacheDir, key+".json")
}
