// Package fetch drives the 2^20 parallel conditional GETs against the
// upstream range endpoint, retries transient failures with exponential
// backoff, and delivers results to the caller in ascending prefix order.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// TotalShards is the number of 20-bit prefixes covering the keyspace.
	TotalShards = 1 << 20

	// DefaultParallel is the default fetch concurrency (spec §6).
	DefaultParallel = 160

	defaultHTTPTimeout = 3 * time.Second

	defaultBaseURL = "https://api.pwnedpasswords.com/range"

	// defaultMaxElapsedTime bounds how long a single shard's retry
	// schedule runs before fetchOne gives up and reports a permanent
	// failure (spec §7 PermanentFetch).
	defaultMaxElapsedTime = 2 * time.Minute
)

// ErrPermanent is wrapped around any error that survived the retry
// schedule; it aborts the build per spec §7 PermanentFetch.
var ErrPermanent = errors.New("fetch: permanent failure")

// Result is one shard's outcome, delivered to the merge stage in ascending
// Prefix20 order.
type Result struct {
	Prefix20 uint32

	// Fresh is true for a 200 response; Body then holds the full text. It
	// is false for a 304 Not Modified response, in which case Body is nil
	// and the caller must fall back to the previous CHDB.
	Fresh bool
	Body  []byte
}

// Options configures a Fetcher.
type Options struct {
	// BaseURL overrides the upstream range endpoint, mainly for tests.
	BaseURL string

	// Parallel bounds how many shard requests are in flight at once.
	// Defaults to DefaultParallel.
	Parallel int

	// IfModifiedSince, when non-zero, is sent as the conditional header on
	// every request, derived from the previous CHDB's timestamp (spec §6).
	IfModifiedSince time.Time

	// HTTPClient overrides the HTTP client used for requests, mainly for
	// tests. Defaults to a client with a cloned default transport and
	// bounded dial/response-header timeouts.
	HTTPClient *http.Client

	// MaxElapsedTime bounds how long a single shard's retry schedule may
	// run before it gives up and reports ErrPermanent. Defaults to
	// defaultMaxElapsedTime.
	MaxElapsedTime time.Duration
}

// Fetcher drives the shard fetch stage.
type Fetcher struct {
	client          *http.Client
	baseURL         string
	parallel        int
	ifModifiedSince string
	maxElapsedTime  time.Duration
}

// New constructs a Fetcher from opts. Pass a zero Options to use every
// default.
func New(opts Options) *Fetcher {
	f := &Fetcher{
		baseURL:        defaultBaseURL,
		parallel:       DefaultParallel,
		client:         opts.HTTPClient,
		maxElapsedTime: defaultMaxElapsedTime,
	}

	if opts.BaseURL != "" {
		f.baseURL = opts.BaseURL
	}

	if opts.Parallel > 0 {
		f.parallel = opts.Parallel
	}

	if opts.MaxElapsedTime > 0 {
		f.maxElapsedTime = opts.MaxElapsedTime
	}

	if !opts.IfModifiedSince.IsZero() {
		f.ifModifiedSince = opts.IfModifiedSince.UTC().Format(http.TimeFormat)
	}

	if f.client == nil {
		f.client = newHTTPClient()
	}

	return f
}

func newHTTPClient() *http.Client {
	dtP, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{Timeout: 30 * time.Second}
	}

	dt := dtP.Clone()
	dt.DialContext = (&net.Dialer{
		Timeout:   defaultHTTPTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	dt.ResponseHeaderTimeout = defaultHTTPTimeout

	return &http.Client{Transport: dt}
}

// Run fetches every shard in [0, TotalShards), delivering each Result to
// onResult in ascending Prefix20 order. It returns once every shard has
// been delivered, onResult returns an error, or a permanent fetch error
// aborts the run.
//
// Concurrency is bounded by f.parallel; ordering is preserved with the
// pattern described in spec §9 "ordered parallel pipeline": a submitter
// goroutine acquires a semaphore slot, allocates a one-shot result channel
// for the shard, and hands that channel to the consumer through a FIFO
// queue before the fetch itself even starts. The consumer receives
// channels in submission order and blocks on each in turn, so a shard that
// completes early simply waits in its channel until the consumer catches
// up — completions may race, delivery never does.
func (f *Fetcher) Run(ctx context.Context, onResult func(Result) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, f.parallel)
	queue := make(chan chan shardOutcome, f.parallel)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)

		for p := uint32(0); p < TotalShards; p++ {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}

			ch := make(chan shardOutcome, 1)

			select {
			case queue <- ch:
			case <-gctx.Done():
				<-sem

				return nil
			}

			go func(p uint32) {
				defer func() { <-sem }()

				res, err := f.fetchOne(gctx, p)
				ch <- shardOutcome{prefix20: p, result: res, err: err}
			}(p)
		}

		return nil
	})

	g.Go(func() error {
		for ch := range queue {
			outcome := <-ch
			if outcome.err != nil {
				return fmt.Errorf("%w: shard %05X: %w", ErrPermanent, outcome.prefix20, outcome.err)
			}

			if err := onResult(outcome.result); err != nil {
				return err
			}
		}

		return nil
	})

	return g.Wait()
}

type shardOutcome struct {
	prefix20 uint32
	result   Result
	err      error
}

// fetchOne issues one shard GET, retrying transient failures with
// exponential backoff and jitter until backoff.Permanent is returned or
// the schedule is exhausted (f.maxElapsedTime), at which point it returns
// the last transient error so Run can wrap and report it as ErrPermanent.
func (f *Fetcher) fetchOne(ctx context.Context, prefix20 uint32) (Result, error) {
	return backoff.Retry(ctx, func() (Result, error) {
		return f.attempt(ctx, prefix20)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(f.maxElapsedTime),
	)
}

func (f *Fetcher) attempt(ctx context.Context, prefix20 uint32) (Result, error) {
	url := fmt.Sprintf("%s/%05X?mode=ntlm", f.baseURL, prefix20)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("fetch: building request for shard %05X: %w", prefix20, err))
	}

	if f.ifModifiedSince != "" {
		req.Header.Set("If-Modified-Since", f.ifModifiedSince)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Uint32("prefix20", prefix20).Msg("transient fetch error, retrying")

		return Result{}, err
	}

	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return Result{}, fmt.Errorf("fetch: reading shard %05X body: %w", prefix20, err)
		}

		return Result{Prefix20: prefix20, Fresh: true, Body: body}, nil
	case http.StatusNotModified:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck

		return Result{Prefix20: prefix20, Fresh: false}, nil
	default:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck

		err := fmt.Errorf("fetch: shard %05X: unexpected status %d", prefix20, resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("transient status, retrying")

			return Result{}, err
		}

		return Result{}, backoff.Permanent(err)
	}
}
