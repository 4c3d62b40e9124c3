package cache

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	Status string    `json:"status"`
	Values []float64 `json:"values"`
}

func TestKey(t *testing.T) {
	a := Key("stats", map[string]any{"from": "2020-01-01"})
	b := Key("stats", map[string]any{"from": "2020-01-01"})
	c := Key("stats", map[string]any{"from": "2020-01-02"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 40)
}

func TestFileCache(t *testing.T) {
	dir := t.TempDir()
	fc := NewFileCache[response](dir)

	_, ok := fc.Get("missing")
	assert.False(t, ok)

	want := response{Status: "OK", Values: []float64{0.5, 0.25}}
	require.NoError(t, fc.Set("k", want))

	got, ok := fc.Get("k")
	require.True(t, ok)
	assert.Equal(t, want, got)

	t.Run("tampered entry is a miss", func(t *testing.T) {
		path := filepath.Join(dir, "k.json")
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		tampered := []byte(string(raw[:len(raw)-1]))
		require.NoError(t, os.WriteFile(path, tampered, 0644))

		_, ok := fc.Get("k")
		assert.False(t, ok)
	})

	t.Run("edited data is a miss", func(t *testing.T) {
		require.NoError(t, fc.Set("k", want))
		path := filepath.Join(dir, "k.json")
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		edited := strings.Replace(string(raw), "0.25", "0.75", 1)
		require.NotEqual(t, string(raw), edited)
		require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

		_, ok := fc.Get("k")
		assert.False(t, ok)
	})
}

const statisticsBody = `{"data":[{"interval":{"from":"2020-01-01T00:00:00Z","to":"2020-02-01T00:00:00Z"},
"outputs":{"data":{"bands":{"B0":{"stats":{"min":0.0,"max":1.0,"mean":2.0E-3,"sampleCount":100}}}}}}],"status":"OK"}`

func TestStatisticsResponseRoundTrip(t *testing.T) {
	want, err := sentinel.DecodeStatistics([]byte(statisticsBody))
	require.NoError(t, err)

	db, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { CloseBadger() })
	badgerCache, err := NewBadgerCache[*sentinel.StatisticsResponse](db, "statistics")
	require.NoError(t, err)

	for name, c := range map[string]Cache[*sentinel.StatisticsResponse]{
		"file":   NewFileCache[*sentinel.StatisticsResponse](t.TempDir()),
		"badger": badgerCache,
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, c.Set("k", want))
			got, ok := c.Get("k")
			require.True(t, ok, "non-canonical numbers must still hit")
			assert.Equal(t, want, got)

			stats := got.Data[0]["outputs"].(map[string]any)["data"].(map[string]any)["bands"].(map[string]any)["B0"].(map[string]any)["stats"].(map[string]any)
			assert.Equal(t, json.Number("1.0"), stats["max"])
		})
	}
}

func TestBadgerCache(t *testing.T) {
	db, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { CloseBadger() })

	stats, err := NewBadgerCache[response](db, "stats")
	require.NoError(t, err)
	images, err := NewBadgerCache[[]byte](db, "images")
	require.NoError(t, err)

	want := response{Status: "OK", Values: []float64{1, 2, 3}}
	require.NoError(t, stats.Set("k", want))
	require.NoError(t, images.Set("k", []byte("tiff")))

	got, ok := stats.Get("k")
	require.True(t, ok)
	assert.Equal(t, want, got)

	img, ok := images.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("tiff"), img)

	_, ok = stats.Get("other")
	assert.False(t, ok)
}

func TestOpenBadger_ReusesDatabase(t *testing.T) {
	dir := t.TempDir()
	first, err := OpenBadger(dir)
	require.NoError(t, err)
	second, err := OpenBadger(dir)
	require.NoError(t, err)
	assert.Same(t, first, second)
	require.NoError(t, CloseBadger())
}

func TestDeduplicated_GetOrLoad(t *testing.T) {
	d := NewDeduplicated[response](NewFileCache[response](t.TempDir()))

	var calls atomic.Int32
	load := func() (response, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return response{Status: "OK"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := d.GetOrLoad("same", load)
			assert.NoError(t, err)
			assert.Equal(t, "OK", got.Status)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())

	_, err := d.GetOrLoad("same", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call is served from cache")
}

func TestDeduplicated_ErrorIsNotCached(t *testing.T) {
	d := NewDeduplicated[response](nil)
	boom := errors.New("boom")

	_, err := d.GetOrLoad("k", func() (response, error) { return response{}, boom })
	assert.ErrorIs(t, err, boom)

	got, err := d.GetOrLoad("k", func() (response, error) { return response{Status: "OK"}, nil })
	require.NoError(t, err)
	assert.Equal(t, "OK", got.Status)
}

func TestNew(t *testing.T) {
	t.Setenv("ROOT_PATH", t.TempDir())

	c, err := New[response](BackendFile, "stats")
	require.NoError(t, err)
	assert.IsType(t, &FileCache[response]{}, c)

	c, err = New[response](BackendNone, "stats")
	require.NoError(t, err)
	require.NoError(t, c.Set("k", response{}))
	_, ok := c.Get("k")
	assert.False(t, ok)

	_, err = New[response]("redis", "stats")
	assert.Error(t, err)
}
