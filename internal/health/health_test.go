package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthy(context.Context) CheckResult   { return CheckResult{Status: StatusHealthy} }
func unhealthy(context.Context) CheckResult { return CheckResult{Status: StatusUnhealthy} }

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		critical Check
		optional Check
		want     Status
	}{
		{"all healthy", healthy, healthy, StatusHealthy},
		{"optional failing", healthy, unhealthy, StatusDegraded},
		{"critical failing", unhealthy, healthy, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			c.RegisterFunc("critical", true, tt.critical)
			c.RegisterFunc("optional", false, tt.optional)
			c.Check(context.Background())
			assert.Equal(t, tt.want, c.OverallStatus())
		})
	}
}

func TestOverallStatusUnknownBeforeCheck(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("critical", true, healthy)
	assert.Equal(t, StatusUnknown, c.OverallStatus())
}

func TestCheckTimeoutAndPanic(t *testing.T) {
	c := NewChecker()
	c.Register(&Component{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Check: func(ctx context.Context) CheckResult {
			<-ctx.Done()
			time.Sleep(50 * time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		},
	})
	c.RegisterFunc("panics", false, func(context.Context) CheckResult { panic("boom") })

	results := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, results["slow"].Status)
	assert.Equal(t, "check timed out", results["slow"].Message)
	assert.Equal(t, StatusUnhealthy, results["panics"].Status)
	assert.Equal(t, "boom", results["panics"].Error)
	assert.Len(t, c.Results(), 2)
}

func TestReadinessHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("critical", true, healthy)

	rec := httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.SetReady(true)
	rec = httptest.NewRecorder()
	c.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMountedHandlers(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("critical", true, healthy)
	c.SetReady(true)

	mux := http.NewServeMux()
	c.Mount(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/livez")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz?full=true")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, StatusHealthy, body.Status)
	assert.True(t, body.Ready)
	assert.Contains(t, body.Components, "critical")
}

func TestHealthHandlerUnhealthy(t *testing.T) {
	c := NewChecker()
	c.RegisterFunc("critical", true, unhealthy)

	rec := httptest.NewRecorder()
	c.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body.Components)
}

func TestStoreCheck(t *testing.T) {
	ok := StoreCheck(func(context.Context) error { return nil })(context.Background())
	assert.Equal(t, StatusHealthy, ok.Status)

	bad := StoreCheck(func(context.Context) error { return errors.New("closed") })(context.Background())
	assert.Equal(t, StatusUnhealthy, bad.Status)
	assert.Equal(t, "closed", bad.Error)
}

func TestInputCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")

	assert.Equal(t, StatusUnhealthy, InputCheck(path)(context.Background()).Status)
	assert.Equal(t, StatusUnhealthy, InputCheck(dir)(context.Background()).Status)

	require.NoError(t, os.WriteFile(path, []byte("[]"), 0600))
	res := InputCheck(path)(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, int64(2), res.Details["size"])
}

func TestRunTracker(t *testing.T) {
	var rt RunTracker
	assert.Equal(t, StatusUnknown, rt.Check(context.Background()).Status)

	now := time.Now()
	rt.Success("run-1", now)
	res := rt.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "run-1", res.Details["run_id"])

	rt.Failure(errors.New("bad input"), now.Add(time.Second))
	res = rt.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "bad input", res.Error)
	assert.Equal(t, "run-1", res.Details["last_success"])
}
