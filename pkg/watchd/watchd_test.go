package watchd_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlabolle/hibppwdflt/pkg/watchd"
)

type fakeBuilder struct {
	entries uint32
	err     error
}

func (f fakeBuilder) Run(context.Context) (uint32, error) { return f.entries, f.err }

func everyMinute(t *testing.T) cron.Schedule {
	t.Helper()

	s, err := cron.ParseStandard("* * * * *")
	require.NoError(t, err)

	return s
}

func TestDaemon_HealthzBeforeFirstBuild(t *testing.T) {
	d := watchd.New(fakeBuilder{}, everyMinute(t), nil)

	srv := httptest.NewServer(d)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestDaemon_StartRunsBuildImmediately(t *testing.T) {
	d := watchd.New(fakeBuilder{}, everyMinute(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	d.Start(ctx)
	defer d.Stop()

	srv := httptest.NewServer(d)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDaemon_HealthzReportsFailure(t *testing.T) {
	d := watchd.New(fakeBuilder{err: errors.New("boom")}, everyMinute(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	d.Start(ctx)
	defer d.Stop()

	srv := httptest.NewServer(d)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestDaemon_MetricsEndpointServesPrometheusFormat(t *testing.T) {
	d := watchd.New(fakeBuilder{}, everyMinute(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	d.Start(ctx)
	defer d.Stop()

	srv := httptest.NewServer(d)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
