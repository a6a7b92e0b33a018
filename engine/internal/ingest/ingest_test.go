package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/kestrelhpc/kestrel/engine/internal/config"
	"github.com/kestrelhpc/kestrel/pkg/types"
)

// clusterMetrics is a realistic subset of a collector adapter's exposition.
const clusterMetrics = `
# HELP disk_used_pct Filesystem usage in percent of capacity.
# TYPE disk_used_pct gauge
disk_used_pct{entity="/scratch",fstype="lustre"} 88.7
disk_used_pct{entity="/home",fstype="nfs"} 42.1

# HELP node_load1 1-minute load average.
# TYPE node_load1 gauge
node_load1{entity="node042"} 12.5

# HELP queue_pending_jobs Jobs waiting in the scheduler queue.
# TYPE queue_pending_jobs gauge
queue_pending_jobs{entity="gpu"} 37

# HELP rpc_latency_seconds RPC latency distribution.
# TYPE rpc_latency_seconds histogram
rpc_latency_seconds_bucket{entity="node042",le="0.1"} 100
rpc_latency_seconds_sum{entity="node042"} 5.2
rpc_latency_seconds_count{entity="node042"} 120
`

func TestParse_ExtractsSamples(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	res, err := Parser{}.Parse(strings.NewReader(clusterMetrics), at)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	byKey := map[string]types.MetricSample{}
	for _, s := range res.Samples {
		byKey[s.Source+"|"+s.Entity] = s
	}

	scratch, ok := byKey["disk_used_pct|/scratch"]
	if !ok {
		t.Fatal("missing /scratch disk sample")
	}
	if scratch.Value != 88.7 {
		t.Errorf("scratch value = %v, want 88.7", scratch.Value)
	}
	if !scratch.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want poll time %v", scratch.Timestamp, at)
	}
	if _, ok := byKey["node_load1|node042"]; !ok {
		t.Error("missing node load sample")
	}
	if _, ok := byKey["queue_pending_jobs|gpu"]; !ok {
		t.Error("missing queue sample")
	}
}

func TestParse_SkipsHistogramSeries(t *testing.T) {
	res, err := Parser{}.Parse(strings.NewReader(clusterMetrics), time.Now())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for _, s := range res.Samples {
		if strings.HasPrefix(s.Source, "rpc_latency") {
			t.Errorf("histogram series leaked into samples: %q", s.Source)
		}
	}
	if res.SkippedMetrics == 0 {
		t.Error("histogram series should be counted as skipped")
	}
}

func TestParse_SkipsMissingEntityLabel(t *testing.T) {
	body := `
node_load1{entity="node042"} 1.5
node_load1 2.5
`
	res, err := Parser{}.Parse(strings.NewReader(body), time.Now())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(res.Samples))
	}
	if res.SkippedMetrics != 1 {
		t.Errorf("skipped = %d, want 1", res.SkippedMetrics)
	}
}

func TestParse_CustomEntityLabel(t *testing.T) {
	body := `node_load1{instance="node042:9100"} 3` + "\n"
	res, err := Parser{EntityLabel: "instance"}.Parse(strings.NewReader(body), time.Now())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(res.Samples) != 1 || res.Samples[0].Entity != "node042:9100" {
		t.Fatalf("samples = %+v, want one with instance entity", res.Samples)
	}
}

func TestParse_ExpositionTimestampWins(t *testing.T) {
	body := `disk_used_pct{entity="/scratch"} 80 1767960000000` + "\n"
	res, err := Parser{}.Parse(strings.NewReader(body), time.Now())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := time.UnixMilli(1767960000000).UTC()
	if !res.Samples[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want exposition time %v", res.Samples[0].Timestamp, want)
	}
}

func TestParse_Garbage(t *testing.T) {
	if _, err := (Parser{}).Parse(strings.NewReader("{{{not exposition"), time.Now()); err == nil {
		t.Fatal("expected parse error for garbage input, got nil")
	}
}

type memSink struct{ samples []types.MetricSample }

func (m *memSink) Append(s types.MetricSample) { m.samples = append(m.samples, s) }

func TestPoller_Poll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(clusterMetrics))
	}))
	defer srv.Close()

	sink := &memSink{}
	p := NewPoller(config.Collector{ID: "fs-head", Endpoint: srv.URL}, sink)

	res, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(res.Samples) != 4 {
		t.Errorf("parsed %d samples, want 4", len(res.Samples))
	}
	if len(sink.samples) != 4 {
		t.Errorf("sink received %d samples, want 4", len(sink.samples))
	}

	entities := make([]string, 0, len(sink.samples))
	for _, s := range sink.samples {
		entities = append(entities, s.Entity)
	}
	sort.Strings(entities)
	want := []string{"/home", "/scratch", "gpu", "node042"}
	for i := range want {
		if entities[i] != want[i] {
			t.Errorf("entities[%d] = %q, want %q", i, entities[i], want[i])
		}
	}
}

func TestPoller_SendsAPIKey(t *testing.T) {
	t.Setenv("COLLECTOR_KEY", "supersecret")

	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-kestrel-key")
		_, _ = w.Write([]byte(`node_load1{entity="n1"} 1` + "\n"))
	}))
	defer srv.Close()

	p := NewPoller(config.Collector{
		ID:       "secured",
		Endpoint: srv.URL,
		Auth:     config.ClientAuthConfig{Mode: "apikey", Header: "x-kestrel-key", KeyEnv: "COLLECTOR_KEY"},
	}, &memSink{})

	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if gotKey != "supersecret" {
		t.Errorf("api key header = %q, want supersecret", gotKey)
	}
}

func TestPoller_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewPoller(config.Collector{ID: "denied", Endpoint: srv.URL}, &memSink{})
	if _, err := p.Poll(context.Background()); err == nil {
		t.Fatal("expected error for 403 response, got nil")
	}
}

func TestPoller_ConnectFailure(t *testing.T) {
	p := NewPoller(config.Collector{ID: "down", Endpoint: "http://127.0.0.1:1"}, &memSink{})
	if _, err := p.Poll(context.Background()); err == nil {
		t.Fatal("expected error for unreachable endpoint, got nil")
	}
}
