package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CachePurger is the cache maintenance surface.
type CachePurger interface {
	Purge(ctx context.Context) (int64, error)
}

// CachePurgeJob removes expired cache entries.
type CachePurgeJob struct {
	cache   CachePurger
	timeout time.Duration
	log     zerolog.Logger
}

// NewCachePurgeJob creates the cache maintenance job.
func NewCachePurgeJob(cache CachePurger, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{
		cache:   cache,
		timeout: time.Minute,
		log:     log.With().Str("job", "cache_purge").Logger(),
	}
}

// Name implements Job.
func (j *CachePurgeJob) Name() string {
	return "cache_purge"
}

// Run implements Job.
func (j *CachePurgeJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	_, err := j.cache.Purge(ctx)
	return err
}
