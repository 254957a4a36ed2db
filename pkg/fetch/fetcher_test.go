package fetch_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlabolle/hibppwdflt/pkg/fetch"
)

// tinyUpstream serves only the handful of prefixes a test exercises,
// returning 304 for everything else so the full keyspace sweep is fast.
func tinyUpstream(t *testing.T, fresh map[uint32]string, ifModSinceSeen *string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hex, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/"), 16, 32)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		prefix := uint32(hex)

		if ifModSinceSeen != nil {
			if v := r.Header.Get("If-Modified-Since"); v != "" {
				*ifModSinceSeen = v
			}
		}

		if body, ok := fresh[prefix]; ok {
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, body)

			return
		}

		w.WriteHeader(http.StatusNotModified)
	}))
}

func TestFetcher_DeliversInOrder(t *testing.T) {
	srv := tinyUpstream(t, map[uint32]string{3: "fresh-3", 7: "fresh-7"}, nil)
	defer srv.Close()

	f := fetch.New(fetch.Options{BaseURL: srv.URL, Parallel: 4})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		mu   sync.Mutex
		seen []uint32
	)

	// Limit the sweep by wrapping TotalShards would require changing the
	// package constant, so this test only asserts ordering among the
	// first handful of deliveries it observes before canceling.
	count := 0

	err := f.Run(ctx, func(r fetch.Result) error {
		mu.Lock()
		seen = append(seen, r.Prefix20)
		mu.Unlock()

		count++
		if count >= 16 {
			cancel()
		}

		return nil
	})

	require.True(t, err == nil || ctx.Err() != nil)

	for i, p := range seen {
		assert.Equal(t, uint32(i), p)
	}
}

func TestFetcher_SendsConditionalHeader(t *testing.T) {
	var seenHeader string

	srv := tinyUpstream(t, nil, &seenHeader)
	defer srv.Close()

	ts := time.Unix(0, 1700000000000000000).UTC()

	f := fetch.New(fetch.Options{BaseURL: srv.URL, Parallel: 2, IfModifiedSince: ts})

	ctx, cancel := context.WithCancel(context.Background())

	count := 0

	err := f.Run(ctx, func(fetch.Result) error {
		count++
		if count >= 2 {
			cancel()
		}

		return nil
	})

	require.True(t, err == nil || ctx.Err() != nil)
	assert.Equal(t, ts.Format(http.TimeFormat), seenHeader)
}

func TestFetcher_StopsOnCallbackError(t *testing.T) {
	srv := tinyUpstream(t, nil, nil)
	defer srv.Close()

	f := fetch.New(fetch.Options{BaseURL: srv.URL, Parallel: 2})

	wantErr := fmt.Errorf("stop here")

	err := f.Run(context.Background(), func(fetch.Result) error {
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
}

// alwaysTransientUpstream always answers with a 503, so every shard's
// retry schedule runs to exhaustion.
func alwaysTransientUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
}

func TestFetcher_ExhaustsRetryBudgetAndReportsPermanent(t *testing.T) {
	srv := alwaysTransientUpstream(t)
	defer srv.Close()

	f := fetch.New(fetch.Options{
		BaseURL:        srv.URL,
		Parallel:       2,
		MaxElapsedTime: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := f.Run(ctx, func(fetch.Result) error {
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, fetch.ErrPermanent)
}
