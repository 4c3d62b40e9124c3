package fetch

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_PreservesInputOrder(t *testing.T) {
	reqs := make([]int, 50)
	for i := range reqs {
		reqs[i] = i
	}

	results, err := All(context.Background(), reqs, Options{Workers: 8, Quiet: true}, func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		return n * n, nil
	})
	require.NoError(t, err)
	require.Len(t, results, len(reqs))
	for i, r := range results {
		assert.Equal(t, i*i, r)
	}
}

func TestAll_BoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	reqs := make([]struct{}, 20)

	_, err := All(context.Background(), reqs, Options{Workers: 3, Quiet: true}, func(_ context.Context, _ struct{}) (bool, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return true, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestAll_SingleFailureFailsBatch(t *testing.T) {
	boom := errors.New("boom")
	reqs := []string{"a", "b", "c", "d"}

	results, err := All(context.Background(), reqs, Options{Workers: 2, Quiet: true}, func(_ context.Context, s string) (string, error) {
		if s == "c" {
			return "", boom
		}
		return s, nil
	})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "request 2")
}

func TestAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := All(ctx, []int{1, 2}, Options{Quiet: true}, func(ctx context.Context, n int) (int, error) {
		return n, nil
	})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAll_Empty(t *testing.T) {
	results, err := All(context.Background(), nil, Options{}, func(context.Context, int) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}
