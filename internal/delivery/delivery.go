// Package delivery wires the building blocks into the runs offered by the CLI.
package delivery

import (
	"context"
	"fmt"

	"github.com/forest-guardian/copernicus-stats/internal/cache"
	"github.com/forest-guardian/copernicus-stats/internal/notification"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/store"
	log "github.com/sirupsen/logrus"
)

// Sentinel is the part of sentinel.Client used by the runs.
type Sentinel interface {
	Statistics(ctx context.Context, req sentinel.StatisticalRequest) (*sentinel.StatisticsResponse, error)
	Process(ctx context.Context, req sentinel.ProcessRequest) ([]byte, error)
}

// Deps carries the collaborators shared by every run.
type Deps struct {
	Config   properties.Config
	Client   Sentinel
	Sink     store.Sink            // optional
	Notifier *notification.Discord // optional
	Quiet    bool

	statistics *cache.Deduplicated[*sentinel.StatisticsResponse]
}

// NewDeps builds the Sentinel Hub client and the statistics cache from cfg.
func NewDeps(cfg properties.Config) (*Deps, error) {
	client, err := sentinel.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c, err := cache.New[*sentinel.StatisticsResponse](cfg.CacheBackend, "statistics")
	if err != nil {
		return nil, err
	}
	return &Deps{
		Config:     cfg,
		Client:     client,
		Notifier:   notification.NewDiscord(),
		statistics: cache.NewDeduplicated(c),
	}, nil
}

// WithCache replaces the statistics cache.
func (d *Deps) WithCache(c cache.Cache[*sentinel.StatisticsResponse]) *Deps {
	d.statistics = cache.NewDeduplicated(c)
	return d
}

func (d *Deps) statisticsCache() *cache.Deduplicated[*sentinel.StatisticsResponse] {
	if d.statistics == nil {
		d.statistics = cache.NewDeduplicated[*sentinel.StatisticsResponse](nil)
	}
	return d.statistics
}

func (d *Deps) notifySuccess(ctx context.Context, format string, args ...any) {
	if err := d.Notifier.Success(ctx, fmt.Sprintf(format, args...)); err != nil {
		log.WithError(err).Warn("failed to send success notification")
	}
}

func (d *Deps) notifyError(ctx context.Context, runErr error) {
	if err := d.Notifier.Error(ctx, runErr.Error()); err != nil {
		log.WithError(err).Warn("failed to send error notification")
	}
}
