package search

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/metadata"
)

// dispatcher fans repositories out to a bounded pool of workers.
//
// Workers check the batch context before dequeuing, before each external call
// and before emitting. External calls run on the caller's context, so a
// sibling failure stops new work without aborting calls already in flight.
type dispatcher struct {
	searcher    Searcher
	resolver    metadata.Resolver
	concurrency int
	callTimeout time.Duration
	logger      *logging.Logger
	metrics     *Metrics
	active      *atomic.Int64

	// queueDrained runs once every repository has been handed to a worker.
	queueDrained func()

	// failed runs for every worker error that reaches the error group.
	failed func(error)
}

// dispatch runs the pool and closes results after every worker has returned.
//
// It returns the first worker error, or nil. completed counts the
// repositories whose batch was emitted.
func (d *dispatcher) dispatch(ctx context.Context, p PatternSpec, repos []string, results chan<- []RepoMatch) (completed int, err error) {
	defer close(results)

	var done atomic.Int64
	g, batchCtx := errgroup.WithContext(ctx)
	queue := make(chan string)

	workers := d.concurrency
	if workers > len(repos) {
		workers = len(repos)
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			return d.work(ctx, batchCtx, p, queue, results, &done)
		})
	}

	drained := true
feed:
	for _, repo := range repos {
		select {
		case queue <- repo:
		case <-batchCtx.Done():
			drained = false
			break feed
		}
	}
	close(queue)
	if drained && d.queueDrained != nil {
		d.queueDrained()
	}

	err = g.Wait()
	return int(done.Load()), err
}

func (d *dispatcher) work(ctx, batchCtx context.Context, p PatternSpec, queue <-chan string, results chan<- []RepoMatch, done *atomic.Int64) error {
	d.active.Add(1)
	d.metrics.ActiveWorkers.Inc()
	defer func() {
		d.metrics.ActiveWorkers.Dec()
		d.active.Add(-1)
	}()

	for {
		if batchCtx.Err() != nil {
			return nil
		}

		var repo string
		select {
		case r, ok := <-queue:
			if !ok {
				return nil
			}
			repo = r
		case <-batchCtx.Done():
			return nil
		}

		repoCtx := logging.WithRepo(ctx, repo)
		batch, err := d.searchRepo(repoCtx, batchCtx, p, repo)
		if batchCtx.Err() != nil {
			// Another worker failed first or the caller went away.
			d.metrics.DiscardedResults.Inc()
			d.metrics.RepoSearchesTotal.WithLabelValues("discarded").Inc()
			d.logger.Debug(repoCtx, "dropping result of canceled batch", zap.Error(err))
			return nil
		}
		if err != nil {
			d.metrics.RepoSearchesTotal.WithLabelValues(string(KindOf(err))).Inc()
			d.logger.Warn(repoCtx, "repository search failed",
				zap.String("kind", string(KindOf(err))),
				zap.Error(err),
			)
			if d.failed != nil {
				d.failed(err)
			}
			return err
		}

		results <- batch
		done.Add(1)
		d.metrics.RepoSearchesTotal.WithLabelValues("success").Inc()
		d.logger.Debug(repoCtx, "repository searched", zap.Int("file_matches", len(batch)))
	}
}

// searchRepo resolves repo and searches it. Each step is skipped once the
// batch is canceled; the calls themselves use ctx, each under its own
// deadline.
func (d *dispatcher) searchRepo(ctx, batchCtx context.Context, p PatternSpec, repo string) ([]RepoMatch, error) {
	resolveCtx, cancel := d.callContext(ctx)
	snap, err := d.resolver.Resolve(resolveCtx, repo)
	cancel()
	if err != nil {
		var resolveErr *ResolveError
		if errors.As(err, &resolveErr) {
			return nil, err
		}
		return nil, &ResolveError{Repo: repo, Err: err}
	}

	if err := batchCtx.Err(); err != nil {
		return nil, err
	}

	searchCtx, cancel := d.callContext(ctx)
	defer cancel()
	files, err := d.searcher.Search(searchCtx, snap.Repo, snap.Commit, p)
	if err != nil {
		return nil, err
	}
	return toRepoMatches(snap.Repo, snap.Commit, files), nil
}

// callContext bounds one external call by callTimeout, if set.
func (d *dispatcher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.callTimeout > 0 {
		return context.WithTimeout(ctx, d.callTimeout)
	}
	return ctx, func() {}
}
