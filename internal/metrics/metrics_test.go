package metrics

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelsString(t *testing.T) {
	assert.Equal(t, "", Labels(nil).String())
	assert.Equal(t, `{a="1",b="2"}`, Labels{"b": "2", "a": "1"}.String())
	assert.Equal(t, `{le="0.5"}`, Labels(nil).with("le", "0.5"))
	assert.Equal(t, `{a="1",le="+Inf"}`, Labels{"a": "1"}.with("le", "+Inf"))
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("c", "help", nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	c.Add(5)

	assert.Equal(t, uint64(805), c.Value())
}

func TestGauge(t *testing.T) {
	g := NewGauge("g", "help", nil)
	g.Set(2.5)
	g.Inc()
	g.Dec()
	g.Add(-0.5)
	assert.InDelta(t, 2.0, g.Value(), 1e-12)

	g.Set(math.NaN())
	assert.True(t, math.IsNaN(g.Value()))
}

func TestHistogramBuckets(t *testing.T) {
	h := NewHistogram("h", "help", nil, []float64{1, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.1, 0.3, 0.5, 2} {
		h.Observe(v)
	}

	assert.Equal(t, uint64(5), h.Count())
	assert.InDelta(t, 2.95, h.Sum(), 1e-12)
	assert.InDelta(t, 0.59, h.Mean(), 1e-12)

	h.mu.Lock()
	cum := h.cumulative()
	h.mu.Unlock()
	// 0.1, 0.5, 1, +Inf
	assert.Equal(t, []uint64{2, 4, 4, 5}, cum)
}

func TestHistogramTimer(t *testing.T) {
	h := NewHistogram("h", "help", nil, nil)
	d := h.Timer().Stop()
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Equal(t, uint64(1), h.Count())
	assert.Equal(t, 0.0, NewHistogram("e", "", nil, nil).Mean())
}

func TestRegistryDeduplicates(t *testing.T) {
	r := NewRegistry("ns", "sub")
	c1 := r.RegisterCounter("x_total", "help", nil)
	c2 := r.RegisterCounter("x_total", "other", nil)
	assert.Same(t, c1, c2)
	assert.Equal(t, "ns_sub_x_total", c1.Name())
	assert.Same(t, c1, r.GetCounter("x_total"))
	assert.Nil(t, r.GetGauge("x_total"))
	assert.Nil(t, r.GetHistogram("missing"))
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("seqsentry", "")
	r.RegisterCounter("b_total", "B things", nil).Add(3)
	r.RegisterCounter("a_total", "A things", Labels{"kind": "x"}).Inc()
	r.RegisterGauge("level", "Level", nil).Set(0.25)
	h := r.RegisterHistogram("lat_seconds", "Latency", nil, []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(5)

	var buf bytes.Buffer
	require.NoError(t, r.WritePrometheus(&buf))
	out := buf.String()

	assert.Contains(t, out, "# TYPE seqsentry_a_total counter\n")
	assert.Contains(t, out, `seqsentry_a_total{kind="x"} 1`)
	assert.Contains(t, out, "seqsentry_b_total 3\n")
	assert.Contains(t, out, "seqsentry_level 0.25\n")
	assert.Contains(t, out, `seqsentry_lat_seconds_bucket{le="0.1"} 1`)
	assert.Contains(t, out, `seqsentry_lat_seconds_bucket{le="1"} 1`)
	assert.Contains(t, out, `seqsentry_lat_seconds_bucket{le="+Inf"} 2`)
	assert.Contains(t, out, "seqsentry_lat_seconds_count 2\n")
	assert.Less(t, strings.Index(out, "seqsentry_a_total"), strings.Index(out, "seqsentry_b_total"))
}

func TestWriteJSON(t *testing.T) {
	r := NewRegistry("seqsentry", "")
	r.RegisterCounter("runs_total", "Runs", nil).Inc()
	r.RegisterGauge("rarest", "Rarest", nil).Set(math.NaN())
	r.RegisterHistogram("d", "D", nil, []float64{1}).Observe(0.5)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "counter", decoded["seqsentry_runs_total"]["type"])
	assert.Equal(t, 1.0, decoded["seqsentry_runs_total"]["value"])
	assert.Nil(t, decoded["seqsentry_rarest"]["value"])
	assert.Equal(t, 1.0, decoded["seqsentry_d"]["count"])
}

func TestSnapshotAndReset(t *testing.T) {
	r := NewRegistry("", "")
	r.RegisterCounter("c", "", nil).Add(2)
	r.RegisterGauge("g", "", nil).Set(7)
	r.RegisterHistogram("h", "", nil, nil).Observe(1)

	snap := r.Snapshot()
	assert.Equal(t, uint64(2), snap["c"])
	assert.Equal(t, 7.0, snap["g"])
	assert.Equal(t, uint64(1), snap["h_count"])

	r.Reset()
	snap = r.Snapshot()
	assert.Equal(t, uint64(0), snap["c"])
	assert.Equal(t, 0.0, snap["g"])
	assert.Equal(t, uint64(0), snap["h_count"])
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("seqsentry", "")
	r.RegisterCounter("runs_total", "Runs", nil).Inc()
	srv := httptest.NewServer(r.HTTPHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "application/json", resp2.Header.Get("Content-Type"))
}

func TestDefaultRegistry(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	r := NewRegistry("test", "")
	SetDefault(r)
	assert.Same(t, r, Default())
	assert.Same(t, r, NewScoring(nil).Registry())
}

func TestScoringObserveRun(t *testing.T) {
	s := NewScoring(NewRegistry("seqsentry", ""))
	finished := time.Unix(1700000000, 0)

	s.ObserveRun(RunStats{
		Trained: 10, Scored: 8, Unscored: 2,
		Commands: 5, Params: 3, Values: 4,
		Rarest: 0.01, FinishedAt: finished,
	})
	s.ObserveRun(RunStats{Trained: 1, Scored: 1, Rarest: 0.5})
	s.RecordError()

	assert.Equal(t, uint64(2), s.RunsTotal.Value())
	assert.Equal(t, uint64(11), s.SessionsTrained.Value())
	assert.Equal(t, uint64(9), s.SessionsScored.Value())
	assert.Equal(t, uint64(2), s.SessionsUnscored.Value())
	assert.Equal(t, uint64(1), s.ErrorsTotal.Value())
	assert.Equal(t, 0.5, s.RarestLikelihood.Value())
	assert.Equal(t, 0.0, s.VocabularyCommands.Value())
	assert.Greater(t, s.LastRunTimestamp.Value(), float64(finished.Unix()))
	assert.GreaterOrEqual(t, s.Uptime.Value(), 0.0)
}
