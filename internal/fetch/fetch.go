// Package fetch runs independent remote requests on a bounded worker pool.
package fetch

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
)

// Options tunes a batch.
type Options struct {
	Workers     int
	Description string
	Quiet       bool
}

// All calls fn once per request using at most opts.Workers goroutines.
// The i-th response answers the i-th request. If any call fails the remaining
// calls are cancelled and All returns nil and the first error.
func All[Req, Resp any](ctx context.Context, reqs []Req, opts Options, fn func(context.Context, Req) (Resp, error)) ([]Resp, error) {
	if len(reqs) == 0 {
		return []Resp{}, nil
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var progressBar *progressbar.ProgressBar
	if opts.Quiet {
		progressBar = progressbar.DefaultSilent(int64(len(reqs)), opts.Description)
	} else {
		progressBar = progressbar.Default(int64(len(reqs)), opts.Description)
	}

	var (
		results  = make([]Resp, len(reqs))
		firstErr error
		once     sync.Once
	)

	wp := workerpool.New(workers)
	for i, req := range reqs {
		i, req := i, req
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			resp, err := fn(ctx, req)
			if err != nil {
				once.Do(func() {
					firstErr = fmt.Errorf("request %d failed: %w", i, err)
					cancel()
				})
				return
			}
			results[i] = resp
			progressBar.Add(1)
		})
	}
	wp.StopWait()
	progressBar.Finish()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
