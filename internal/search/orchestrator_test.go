package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/reposearch/internal/metadata"
	"github.com/fyrsmithlabs/reposearch/internal/telemetry"
)

// fakeSearcher answers searches through fn and records every call.
type fakeSearcher struct {
	endpoint string
	fn       func(ctx context.Context, repo, commit string) ([]FileMatch, error)

	mu       sync.Mutex
	calls    []string
	inFlight int
	maxSeen  int
}

func (f *fakeSearcher) Endpoint() string { return f.endpoint }

func (f *fakeSearcher) Search(ctx context.Context, repo, commit string, p PatternSpec) ([]FileMatch, error) {
	f.mu.Lock()
	f.calls = append(f.calls, repo)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.fn == nil {
		return nil, nil
	}
	return f.fn(ctx, repo, commit)
}

func (f *fakeSearcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSearcher) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeen
}

// identity resolves every name to itself at commit "c-<name>".
func identity() metadata.ResolverFunc {
	return func(ctx context.Context, name string) (metadata.Snapshot, error) {
		return metadata.Snapshot{Repo: name, Commit: "c-" + name}, nil
	}
}

func newTestOrchestrator(s Searcher, r metadata.Resolver, cfg Config, opts ...Option) (*Orchestrator, *Metrics) {
	m := NewMetricsWith(prometheus.NewRegistry())
	opts = append([]Option{WithMetrics(m)}, opts...)
	return New(s, r, cfg, opts...), m
}

// withCounts returns one file per repo with the given number of line matches.
func withCounts(counts map[string]int) func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
	return func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
		return []FileMatch{{Path: repo + ".go", LineMatches: lines(counts[repo])}}, nil
	}
}

func paths(r *Result) []string {
	out := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Path
	}
	return out
}

func TestSearch_OrdersByLineMatchCount(t *testing.T) {
	s := &fakeSearcher{endpoint: "http://searcher", fn: withCounts(map[string]int{"a": 2, "b": 0, "c": 5})}
	o, m := newTestOrchestrator(s, identity(), Config{})

	res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.SearchID)
	assert.Equal(t, []string{"b.go", "a.go", "c.go"}, paths(res))
	assert.Equal(t, "c-b", res.Matches[0].Commit)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RepoSearchesTotal.WithLabelValues("success")))
	assert.Equal(t, 0, o.ActiveWorkers())
}

func TestSearch_AgainstHTTPSearcher(t *testing.T) {
	counts := map[string]int{"a": 2, "b": 0, "c": 5}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		repo := r.URL.Query().Get("Repo")
		lm := make([]wireLineMatch, counts[repo])
		for i := range lm {
			lm[i] = wireLineMatch{Preview: "x", LineNumber: int32(i)}
		}
		_ = json.NewEncoder(w).Encode([]wireFileMatch{{Path: repo + ".go", LineMatches: lm}})
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{URL: srv.URL})
	require.NoError(t, err)
	o, _ := newTestOrchestrator(c, identity(), Config{})

	res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.go", "a.go", "c.go"}, paths(res))
	assert.Equal(t, int32(1), res.Matches[1].LineMatches[0].LineNumber)
}

func TestSearch_TransportFailureFailsWholeSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("Repo") == "r3" {
			hj, ok := w.(http.Hijacker)
			if !ok {
				http.Error(w, "no hijack", http.StatusInternalServerError)
				return
			}
			conn, _, _ := hj.Hijack()
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte(`[{"Path": "f.go", "LineMatches": [{"Preview": "x", "LineNumber": 0}]}]`))
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{URL: srv.URL})
	require.NoError(t, err)
	o, m := newTestOrchestrator(c, identity(), Config{})

	res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"r1", "r2", "r3", "r4", "r5"})
	require.Error(t, err)
	assert.Nil(t, res)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, "r3", netErr.Repo)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues(string(KindNetwork))))
	assert.Equal(t, 0, o.ActiveWorkers())
}

func TestSearch_UnconfiguredSearcher(t *testing.T) {
	var nilClient *Client
	tests := []struct {
		name     string
		searcher Searcher
	}{
		{"nil searcher", nil},
		{"nil client", nilClient},
		{"empty endpoint", &fakeSearcher{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resolves atomic.Int32
			resolver := metadata.ResolverFunc(func(ctx context.Context, name string) (metadata.Snapshot, error) {
				resolves.Add(1)
				return metadata.Snapshot{Repo: name, Commit: "c"}, nil
			})
			o, _ := newTestOrchestrator(tt.searcher, resolver, Config{})

			res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a", "b"})
			assert.Nil(t, res)
			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.ErrorIs(t, err, ErrNoEndpoint)
			assert.Equal(t, int32(0), resolves.Load())

			if fs, ok := tt.searcher.(*fakeSearcher); ok {
				assert.Empty(t, fs.Calls())
			}
		})
	}
}

func TestSearch_NilResolver(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeSearcher{endpoint: "http://searcher"}, nil, Config{})

	_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a"})
	assert.Equal(t, KindConfiguration, KindOf(err))
}

func TestSearch_EmptyInput(t *testing.T) {
	var transitions []string
	hook := func(id string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	s := &fakeSearcher{endpoint: "http://searcher"}
	o, _ := newTestOrchestrator(s, identity(), Config{}, WithStateHook(hook))

	for _, repos := range [][]string{nil, {}} {
		transitions = nil
		res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, repos)
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.NotNil(t, res.Matches)
		assert.Empty(t, res.Matches)
		assert.Equal(t, []string{"idle->done"}, transitions)
	}
	assert.Empty(t, s.Calls())
}

func TestSearch_WhitespacePattern(t *testing.T) {
	s := &fakeSearcher{endpoint: "http://searcher", fn: withCounts(map[string]int{"a": 2})}
	o, _ := newTestOrchestrator(s, identity(), Config{})

	for _, pattern := range []string{"\t", "  "} {
		res, err := o.Search(context.Background(), PatternSpec{Pattern: pattern}, []string{"a"})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)

		res, err = o.Search(context.Background(), PatternSpec{Pattern: pattern}, nil)
		require.NoError(t, err)
		assert.Empty(t, res.Matches)
	}
	assert.Equal(t, []string{"a", "a"}, s.Calls())
}

func TestSearch_AllOrNothing(t *testing.T) {
	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			if repo == "bad" {
				time.Sleep(20 * time.Millisecond)
				return nil, &RemoteError{Repo: repo, StatusCode: http.StatusInternalServerError, Body: "boom"}
			}
			return []FileMatch{{Path: repo + ".go", LineMatches: lines(1)}}, nil
		},
	}
	o, _ := newTestOrchestrator(s, identity(), Config{Concurrency: 4})

	res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a", "b", "bad", "c"})
	assert.Nil(t, res)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.StatusCode)
}

func TestSearch_FailureDoesNotAbortInFlightCalls(t *testing.T) {
	slowStarted := make(chan struct{})
	var slowCtxErr atomic.Value
	var slowFinished atomic.Bool

	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			switch repo {
			case "slow":
				close(slowStarted)
				time.Sleep(100 * time.Millisecond)
				if err := ctx.Err(); err != nil {
					slowCtxErr.Store(err)
				}
				slowFinished.Store(true)
				return []FileMatch{{Path: "slow.go"}}, nil
			case "fail":
				<-slowStarted
				return nil, &NetworkError{Repo: repo, Err: errors.New("connection reset")}
			}
			return nil, nil
		},
	}
	o, m := newTestOrchestrator(s, identity(), Config{Concurrency: 2})

	_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"slow", "fail"})
	assert.Equal(t, KindNetwork, KindOf(err))

	// Search joins every worker before returning.
	assert.True(t, slowFinished.Load())
	assert.Nil(t, slowCtxErr.Load(), "in-flight call must not see cancellation")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DiscardedResults))
	assert.Equal(t, 0, o.ActiveWorkers())
}

func TestSearch_FailureStopsNewWork(t *testing.T) {
	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			if repo == "fail" {
				return nil, &RemoteError{Repo: repo, StatusCode: http.StatusBadGateway}
			}
			return nil, nil
		},
	}
	o, _ := newTestOrchestrator(s, identity(), Config{Concurrency: 1})

	_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"fail", "b", "c"})
	assert.Equal(t, KindRemote, KindOf(err))
	assert.Equal(t, []string{"fail"}, s.Calls())
}

func TestSearch_BoundedConcurrency(t *testing.T) {
	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			time.Sleep(5 * time.Millisecond)
			return nil, nil
		},
	}
	o, _ := newTestOrchestrator(s, identity(), Config{Concurrency: 3})
	assert.Equal(t, 3, o.Concurrency())

	repos := make([]string, 20)
	for i := range repos {
		repos[i] = fmt.Sprintf("repo-%02d", i)
	}
	_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, repos)
	require.NoError(t, err)

	assert.Len(t, s.Calls(), 20)
	assert.LessOrEqual(t, s.MaxInFlight(), 3)
	assert.Equal(t, 0, o.ActiveWorkers())
}

func TestSearch_DefaultConcurrency(t *testing.T) {
	o, _ := newTestOrchestrator(&fakeSearcher{endpoint: "http://searcher"}, identity(), Config{})
	assert.Equal(t, DefaultConcurrency, o.Concurrency())
}

func TestSearch_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			cancel()
			<-ctx.Done()
			return nil, &NetworkError{Repo: repo, Err: ctx.Err()}
		},
	}
	o, _ := newTestOrchestrator(s, identity(), Config{Concurrency: 2})

	res, err := o.Search(ctx, PatternSpec{Pattern: "x"}, []string{"a", "b", "c", "d"})
	assert.Nil(t, res)
	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, o.ActiveWorkers())
}

func TestSearch_CallTimeout(t *testing.T) {
	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			<-ctx.Done()
			return nil, &NetworkError{Repo: repo, Err: ctx.Err()}
		},
	}
	o, _ := newTestOrchestrator(s, identity(), Config{CallTimeout: 20 * time.Millisecond})

	_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a"})
	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestSearch_CallTimeoutPerCall(t *testing.T) {
	const timeout = 80 * time.Millisecond

	// Each step alone fits the timeout; together they do not.
	slowResolve := metadata.ResolverFunc(func(ctx context.Context, name string) (metadata.Snapshot, error) {
		select {
		case <-time.After(timeout / 2):
			return metadata.Snapshot{Repo: name, Commit: "c-" + name}, nil
		case <-ctx.Done():
			return metadata.Snapshot{}, ctx.Err()
		}
	})
	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			select {
			case <-time.After(timeout * 3 / 4):
				return []FileMatch{{Path: "main.go", LineMatches: lines(1)}}, nil
			case <-ctx.Done():
				return nil, &NetworkError{Repo: repo, Err: ctx.Err()}
			}
		},
	}
	o, _ := newTestOrchestrator(s, slowResolve, Config{CallTimeout: timeout})

	res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a"})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1)
}

func TestSearch_ResolveTimeout(t *testing.T) {
	blocked := metadata.ResolverFunc(func(ctx context.Context, name string) (metadata.Snapshot, error) {
		<-ctx.Done()
		return metadata.Snapshot{}, ctx.Err()
	})
	s := &fakeSearcher{endpoint: "http://searcher"}
	o, _ := newTestOrchestrator(s, blocked, Config{CallTimeout: 20 * time.Millisecond})

	_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a"})
	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, KindResolve, KindOf(err))
	assert.Empty(t, s.Calls())
}

func TestSearch_DeduplicatesRepos(t *testing.T) {
	s := &fakeSearcher{endpoint: "http://searcher", fn: withCounts(map[string]int{"a": 1, "b": 1})}
	o, _ := newTestOrchestrator(s, identity(), Config{})

	res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a", "b", "a", "a"})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, s.Calls())
}

func TestSearch_InvalidRequest(t *testing.T) {
	s := &fakeSearcher{endpoint: "http://searcher"}
	o, _ := newTestOrchestrator(s, identity(), Config{MaxRepos: 2})

	tests := []struct {
		name    string
		pattern PatternSpec
		repos   []string
		want    error
	}{
		{"empty pattern", PatternSpec{}, []string{"a"}, ErrInvalidPattern},
		{"bad regexp", PatternSpec{Pattern: "(", IsRegExp: true}, []string{"a"}, ErrInvalidPattern},
		{"empty repo name", PatternSpec{Pattern: "x"}, []string{"a", ""}, ErrEmptyRepoName},
		{"too many repos", PatternSpec{Pattern: "x"}, []string{"a", "b", "c"}, ErrTooManyRepos},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := o.Search(context.Background(), tt.pattern, tt.repos)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindInvalid, KindOf(err))
		})
	}
	assert.Empty(t, s.Calls())
}

func TestSearch_ResolveError(t *testing.T) {
	s := &fakeSearcher{endpoint: "http://searcher"}
	resolver := metadata.NewStatic(map[string]string{"known": "abc"})
	o, _ := newTestOrchestrator(s, resolver, Config{Concurrency: 1})

	_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"unknown", "known"})
	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Equal(t, "unknown", resolveErr.Repo)
	assert.ErrorIs(t, err, metadata.ErrRepoNotFound)
	assert.Empty(t, s.Calls())
}

func TestSearch_StateTransitions(t *testing.T) {
	type move struct{ from, to State }

	record := func() (StateHook, func() []move) {
		var mu sync.Mutex
		var moves []move
		return func(id string, from, to State) {
				mu.Lock()
				moves = append(moves, move{from, to})
				mu.Unlock()
			}, func() []move {
				mu.Lock()
				defer mu.Unlock()
				return append([]move(nil), moves...)
			}
	}

	assertWellFormed := func(t *testing.T, moves []move) {
		t.Helper()
		require.NotEmpty(t, moves)
		assert.Equal(t, StateIdle, moves[0].from)
		done := 0
		for i, mv := range moves {
			if i > 0 {
				assert.Equal(t, moves[i-1].to, mv.from, "transitions must chain")
			}
			if mv.to == StateDone {
				done++
			}
		}
		assert.Equal(t, 1, done, "exactly one terminal transition")
		assert.Equal(t, StateDone, moves[len(moves)-1].to)
	}

	t.Run("success", func(t *testing.T) {
		hook, moves := record()
		o, _ := newTestOrchestrator(&fakeSearcher{endpoint: "http://searcher"}, identity(), Config{}, WithStateHook(hook))

		_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, []move{
			{StateIdle, StateDispatching},
			{StateDispatching, StateCollecting},
			{StateCollecting, StateDone},
		}, moves())
	})

	t.Run("failure", func(t *testing.T) {
		hook, moves := record()
		s := &fakeSearcher{
			endpoint: "http://searcher",
			fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
				return nil, &ProtocolError{Repo: repo, Err: errors.New("eof")}
			},
		}
		o, _ := newTestOrchestrator(s, identity(), Config{Concurrency: 1}, WithStateHook(hook))

		_, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a", "b", "c"})
		require.Error(t, err)

		got := moves()
		assertWellFormed(t, got)
		assert.Contains(t, got, move{StateCancelling, StateDone})
	})

	t.Run("invalid request", func(t *testing.T) {
		hook, moves := record()
		o, _ := newTestOrchestrator(&fakeSearcher{endpoint: "http://searcher"}, identity(), Config{}, WithStateHook(hook))

		_, err := o.Search(context.Background(), PatternSpec{}, []string{"a"})
		require.Error(t, err)
		assert.Equal(t, []move{{StateIdle, StateDone}}, moves())
	})
}

func TestRun_IgnoresIllegalMoves(t *testing.T) {
	r := &run{}
	assert.False(t, r.to(StateCollecting))
	assert.True(t, r.to(StateDispatching))
	assert.False(t, r.to(StateDone))
	assert.True(t, r.to(StateCancelling))
	assert.False(t, r.to(StateCollecting))
	assert.True(t, r.to(StateDone))
	assert.False(t, r.to(StateCancelling))
	assert.Equal(t, StateDone, r.state)
}

func TestSearch_Observer(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	obs := ObserverFunc(func(ctx context.Context, e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	s := &fakeSearcher{endpoint: "http://searcher", fn: withCounts(map[string]int{"a": 1})}
	o, _ := newTestOrchestrator(s, identity(), Config{}, WithObserver(obs))

	res, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, []string{"a"})
	require.NoError(t, err)
	_, err = o.Search(context.Background(), PatternSpec{Pattern: ""}, []string{"a"})
	require.Error(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, res.SearchID, events[0].SearchID)
	assert.Equal(t, EventCompleted, events[1].Type)
	assert.Equal(t, 1, events[1].Matches)
	assert.Equal(t, EventStarted, events[2].Type)
	assert.Equal(t, EventFailed, events[3].Type)
	assert.Equal(t, KindInvalid, events[3].ErrorKind)
	assert.NotEqual(t, events[0].SearchID, events[2].SearchID)
}

func TestSearch_Deterministic(t *testing.T) {
	repos := make([]string, 30)
	counts := make(map[string]int, len(repos))
	for i := range repos {
		repos[i] = fmt.Sprintf("repo-%02d", i)
		counts[repos[i]] = i % 4
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var rngMu sync.Mutex
	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			rngMu.Lock()
			d := time.Duration(rng.Intn(3000)) * time.Microsecond
			rngMu.Unlock()
			time.Sleep(d)
			// Same path in every repository so ties fall through to repo.
			return []FileMatch{
				{Path: "main.go", LineMatches: lines(counts[repo])},
				{Path: "util.go", LineMatches: lines(1)},
			}, nil
		},
	}
	o, _ := newTestOrchestrator(s, identity(), Config{Concurrency: 8})

	first, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, repos)
	require.NoError(t, err)
	second, err := o.Search(context.Background(), PatternSpec{Pattern: "x"}, repos)
	require.NoError(t, err)

	require.Len(t, first.Matches, 60)
	assert.Equal(t, first.Matches, second.Matches)
}

func TestSearch_Span(t *testing.T) {
	tel := telemetry.NewTestTelemetry()
	s := &fakeSearcher{endpoint: "http://searcher"}
	o, _ := newTestOrchestrator(s, identity(), Config{}, WithTracerProvider(tel.TracerProvider()))

	_, err := o.Search(context.Background(), PatternSpec{Pattern: "x", IsRegExp: true}, []string{"a", "b"})
	require.NoError(t, err)

	tel.AssertSpanExists(t, "search.repos")
	tel.AssertSpanAttribute(t, "search.repos", "search.repos", int64(2))
	tel.AssertSpanAttribute(t, "search.repos", "search.regexp", true)
	tel.AssertSpanAttribute(t, "search.repos", "search.matches", int64(0))
}

func TestSearchCommit(t *testing.T) {
	s := &fakeSearcher{
		endpoint: "http://searcher",
		fn: func(ctx context.Context, repo, commit string) ([]FileMatch, error) {
			assert.Equal(t, "deadbeef", commit)
			return []FileMatch{
				{Path: "z.go", LineMatches: lines(1)},
				{Path: "a.go", LineMatches: lines(3)},
				{Path: "b.go", LineMatches: lines(1)},
			}, nil
		},
	}
	o, m := newTestOrchestrator(s, nil, Config{})

	matches, err := o.SearchCommit(context.Background(), "api", "deadbeef", PatternSpec{Pattern: "x"})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "b.go", matches[0].Path)
	assert.Equal(t, "z.go", matches[1].Path)
	assert.Equal(t, "a.go", matches[2].Path)
	assert.Equal(t, "api", matches[0].Repo)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepoSearchesTotal.WithLabelValues("success")))

	_, err = o.SearchCommit(context.Background(), "", "deadbeef", PatternSpec{Pattern: "x"})
	assert.ErrorIs(t, err, ErrEmptyRepoName)

	_, err = o.SearchCommit(context.Background(), "api", "", PatternSpec{Pattern: "x"})
	assert.ErrorIs(t, err, ErrEmptyCommit)
	assert.Equal(t, KindInvalid, KindOf(err))

	unconfigured, _ := newTestOrchestrator(nil, nil, Config{})
	_, err = unconfigured.SearchCommit(context.Background(), "api", "deadbeef", PatternSpec{Pattern: "x"})
	assert.Equal(t, KindConfiguration, KindOf(err))
}
