package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/reposearch/internal/logging"
	"github.com/fyrsmithlabs/reposearch/internal/metadata"
)

// DefaultConcurrency is the number of workers per search when unset.
const DefaultConcurrency = 10

// Config tunes the orchestrator.
type Config struct {
	// Concurrency is the number of workers per search. Defaults to 10.
	Concurrency int

	// CallTimeout bounds the resolve call and the search call of each
	// repository separately. Zero means no deadline. A resolve that times out
	// is a ResolveError and a search that times out is a NetworkError; either
	// fails the whole search.
	CallTimeout time.Duration

	// MaxRepos caps repositories per search. Zero means unlimited.
	MaxRepos int
}

// State is a step of one search call.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateCollecting
	StateCancelling
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateCollecting:
		return "collecting"
	case StateCancelling:
		return "cancelling"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal moves between states.
var transitions = map[State][]State{
	StateIdle:        {StateDispatching, StateDone},
	StateDispatching: {StateCollecting, StateCancelling},
	StateCollecting:  {StateCancelling, StateDone},
	StateCancelling:  {StateDone},
}

// StateHook observes state changes of a search call. It runs while the
// call's state is locked and must not block.
type StateHook func(searchID string, from, to State)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// WithMetrics overrides the process-wide Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithObserver registers a lifecycle observer, e.g. an event publisher.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observers = append(o.observers, obs)
		}
	}
}

// WithStateHook registers a hook called on every state transition.
func WithStateHook(h StateHook) Option {
	return func(o *Orchestrator) {
		o.stateHook = h
	}
}

// Orchestrator runs cross-repository searches.
//
// Each call to Search resolves every repository, searches it with a bounded
// pool of workers and returns either the complete sorted result or the first
// error. An Orchestrator is safe for concurrent use.
type Orchestrator struct {
	searcher  Searcher
	resolver  metadata.Resolver
	cfg       Config
	logger    *logging.Logger
	tracer    trace.Tracer
	metrics   *Metrics
	observers []Observer
	stateHook StateHook

	active atomic.Int64
}

// New creates an orchestrator. A nil or unconfigured searcher is accepted
// here and reported as a ConfigurationError by every call.
func New(searcher Searcher, resolver metadata.Resolver, cfg Config, opts ...Option) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	o := &Orchestrator{
		searcher: searcher,
		resolver: resolver,
		cfg:      cfg,
		logger:   logging.NewNop(),
		tracer:   otel.GetTracerProvider().Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	o.logger = o.logger.Named("orchestrator")
	return o
}

// ActiveWorkers returns the number of workers currently running across all
// calls. It is zero whenever no Search call is in progress.
func (o *Orchestrator) ActiveWorkers() int {
	return int(o.active.Load())
}

// Concurrency returns the configured worker count.
func (o *Orchestrator) Concurrency() int {
	return o.cfg.Concurrency
}

// endpointer is implemented by searchers that know their backend address.
type endpointer interface {
	Endpoint() string
}

// checkConfigured fails before any work when no searcher backend is usable.
func (o *Orchestrator) checkConfigured() error {
	if o.searcher == nil {
		return &ConfigurationError{Err: ErrNoEndpoint}
	}
	if ep, ok := o.searcher.(endpointer); ok && ep.Endpoint() == "" {
		return &ConfigurationError{Err: ErrNoEndpoint}
	}
	if o.resolver == nil {
		return &ConfigurationError{Err: fmt.Errorf("no repository resolver configured")}
	}
	return nil
}

// normalizeRepos drops duplicate names, keeping first occurrence order.
func (o *Orchestrator) normalizeRepos(repos []string) ([]string, error) {
	seen := make(map[string]struct{}, len(repos))
	out := make([]string, 0, len(repos))
	for _, name := range repos {
		if name == "" {
			return nil, ErrEmptyRepoName
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	if o.cfg.MaxRepos > 0 && len(out) > o.cfg.MaxRepos {
		return nil, fmt.Errorf("%w: %d requested, limit is %d", ErrTooManyRepos, len(out), o.cfg.MaxRepos)
	}
	return out, nil
}

// Search runs p against every repository in repos.
//
// It returns the complete result sorted by SortMatches, or the first error any
// worker hit; never both. Duplicate names are searched once. An empty repos
// returns an empty result without starting workers.
func (o *Orchestrator) Search(ctx context.Context, p PatternSpec, repos []string) (*Result, error) {
	searchID := uuid.NewString()
	ctx = logging.WithSearchID(ctx, searchID)

	ctx, span := o.tracer.Start(ctx, "search.repos",
		trace.WithAttributes(
			attribute.String("search.id", searchID),
			attribute.Int("search.repos", len(repos)),
			attribute.Bool("search.regexp", p.IsRegExp),
			attribute.Bool("search.word_match", p.IsWordMatch),
			attribute.Bool("search.case_sensitive", p.IsCaseSensitive),
		),
	)
	defer span.End()

	r := &run{id: searchID, hook: o.stateHook}
	start := time.Now()

	o.notify(ctx, Event{
		Type:      EventStarted,
		SearchID:  searchID,
		Pattern:   p,
		Repos:     len(repos),
		Timestamp: start,
	})

	matches, err := o.search(ctx, r, p, repos)
	elapsed := time.Since(start)

	o.metrics.SearchDuration.Observe(elapsed.Seconds())
	o.metrics.ReposPerSearch.Observe(float64(len(repos)))

	if err != nil {
		kind := KindOf(err)
		o.metrics.SearchesTotal.WithLabelValues(string(kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		o.logger.Warn(ctx, "search failed",
			zap.String("kind", string(kind)),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		o.notify(ctx, Event{
			Type:       EventFailed,
			SearchID:   searchID,
			Pattern:    p,
			Repos:      len(repos),
			ErrorKind:  kind,
			Error:      err.Error(),
			DurationMS: elapsed.Milliseconds(),
			Timestamp:  time.Now(),
		})
		return nil, err
	}

	o.metrics.SearchesTotal.WithLabelValues("success").Inc()
	o.metrics.MatchesPerSearch.Observe(float64(len(matches)))
	span.SetAttributes(attribute.Int("search.matches", len(matches)))
	o.logger.Info(ctx, "search completed",
		zap.Int("repos", len(repos)),
		zap.Int("matches", len(matches)),
		zap.Duration("duration", elapsed),
	)
	o.notify(ctx, Event{
		Type:       EventCompleted,
		SearchID:   searchID,
		Pattern:    p,
		Repos:      len(repos),
		Matches:    len(matches),
		DurationMS: elapsed.Milliseconds(),
		Timestamp:  time.Now(),
	})
	return &Result{SearchID: searchID, Matches: matches}, nil
}

func (o *Orchestrator) search(ctx context.Context, r *run, p PatternSpec, repos []string) ([]RepoMatch, error) {
	if err := o.checkConfigured(); err != nil {
		r.to(StateDone)
		return nil, err
	}
	if err := p.Validate(); err != nil {
		r.to(StateDone)
		return nil, err
	}
	names, err := o.normalizeRepos(repos)
	if err != nil {
		r.to(StateDone)
		return nil, err
	}
	if len(names) == 0 {
		r.to(StateDone)
		return []RepoMatch{}, nil
	}

	r.to(StateDispatching)

	results := make(chan []RepoMatch, o.cfg.Concurrency)
	sorted := aggregate(results)

	d := &dispatcher{
		searcher:     o.searcher,
		resolver:     o.resolver,
		concurrency:  o.cfg.Concurrency,
		callTimeout:  o.cfg.CallTimeout,
		logger:       o.logger,
		metrics:      o.metrics,
		active:       &o.active,
		queueDrained: func() { r.to(StateCollecting) },
		failed:       func(error) { r.to(StateCancelling) },
	}
	completed, err := d.dispatch(ctx, p, names, results)

	// Always drain so the aggregator goroutine exits.
	matches := <-sorted

	if err != nil {
		r.to(StateCancelling)
		r.to(StateDone)
		return nil, err
	}
	if completed != len(names) {
		r.to(StateCancelling)
		r.to(StateDone)
		cause := context.Cause(ctx)
		if cause == nil {
			cause = context.Canceled
		}
		return nil, &CancellationError{Cause: cause}
	}

	r.to(StateDone)
	return matches, nil
}

// SearchCommit searches one already-resolved repository at commit, without
// the worker pool. Matches are sorted like a full search.
func (o *Orchestrator) SearchCommit(ctx context.Context, repo, commit string, p PatternSpec) ([]RepoMatch, error) {
	ctx = logging.WithRepo(ctx, repo)
	ctx, span := o.tracer.Start(ctx, "search.commit",
		trace.WithAttributes(
			attribute.String("search.repo", repo),
			attribute.String("search.commit", commit),
		),
	)
	defer span.End()

	if o.searcher == nil {
		return nil, &ConfigurationError{Err: ErrNoEndpoint}
	}
	if ep, ok := o.searcher.(endpointer); ok && ep.Endpoint() == "" {
		return nil, &ConfigurationError{Err: ErrNoEndpoint}
	}
	if repo == "" {
		return nil, ErrEmptyRepoName
	}
	if commit == "" {
		return nil, ErrEmptyCommit
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	callCtx := ctx
	if o.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
	}

	files, err := o.searcher.Search(callCtx, repo, commit, p)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		o.metrics.RepoSearchesTotal.WithLabelValues(string(KindOf(err))).Inc()
		return nil, err
	}
	o.metrics.RepoSearchesTotal.WithLabelValues("success").Inc()

	matches := toRepoMatches(repo, commit, files)
	SortMatches(matches)
	return matches, nil
}

func (o *Orchestrator) notify(ctx context.Context, e Event) {
	for _, obs := range o.observers {
		obs.Observe(ctx, e)
	}
}

// run tracks the state of one Search call.
type run struct {
	id   string
	hook StateHook

	mu    sync.Mutex
	state State
}

// to moves to next if the move is legal and reports whether it happened.
// Illegal moves, including any move out of StateDone, are ignored.
func (r *run) to(next State) bool {
	r.mu.Lock()
	from := r.state
	legal := false
	for _, s := range transitions[from] {
		if s == next {
			legal = true
			break
		}
	}
	if legal {
		r.state = next
		if r.hook != nil {
			r.hook(r.id, from, next)
		}
	}
	r.mu.Unlock()
	return legal
}
