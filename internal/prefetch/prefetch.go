// Package prefetch downloads every third-party sound of the catalog into the
// local store ahead of the first request for it.
package prefetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"soundserver/internal/catalog"
)

const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

type Config struct {
	Workers int
}

type Catalog interface {
	Build(ctx context.Context) error
	Entries() []catalog.Entry
	Materialize(ctx context.Context, e catalog.Entry) (catalog.Entry, error)
}

// Run summarises one prefetch pass.
type Run struct {
	Status     string
	Remote     int
	Fetched    int
	Failed     []string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Service struct {
	catalog Catalog
	cfg     Config
}

func NewService(c Catalog, cfg Config) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Service{catalog: c, cfg: cfg}
}

// Run rebuilds the catalog and materializes every remote entry. Failed downloads
// are logged and counted; the pass continues with the rest.
func (s *Service) Run(ctx context.Context) (*Run, error) {
	run := &Run{StartedAt: time.Now()}
	defer func() {
		run.FinishedAt = time.Now()
		if run.Status == "" {
			run.Status = StatusCompleted
		}
	}()

	if err := s.catalog.Build(ctx); err != nil {
		run.Status = StatusFailed
		return run, err
	}

	var remote []catalog.Entry
	for _, e := range s.catalog.Entries() {
		if e.Origin == catalog.OriginRemote {
			remote = append(remote, e)
		}
	}
	run.Remote = len(remote)
	if len(remote) == 0 {
		log.Info("No remote sounds to prefetch")
		return run, nil
	}
	log.Info("Prefetching remote sounds", "count", len(remote), "workers", s.cfg.Workers)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, e := range remote {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := s.catalog.Materialize(gctx, e)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("Failed to prefetch sound", "name", e.FullName, "url", e.RemoteURL, "err", err)
				run.Failed = append(run.Failed, e.FullName)
				return nil
			}
			run.Fetched++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		run.Status = StatusFailed
		return run, err
	}

	if len(run.Failed) > 0 {
		run.Status = StatusFailed
		return run, fmt.Errorf("%d of %d downloads failed", len(run.Failed), run.Remote)
	}
	return run, nil
}
