package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/kestrelhpc/kestrel/engine/internal/config"
	"github.com/kestrelhpc/kestrel/engine/internal/observability"
	"github.com/kestrelhpc/kestrel/pkg/types"
)

const defaultPollTimeout = 10 * time.Second

// Sink receives the samples a poller extracts. *store.Store satisfies it.
type Sink interface {
	Append(types.MetricSample)
}

// Poller periodically fetches one collector's exposition endpoint and feeds
// the parsed samples into the sink. The HTTP client is built once and reused
// across polls.
type Poller struct {
	coll     config.Collector
	client   *http.Client
	parser   Parser
	sink     Sink
	interval time.Duration
}

// NewPoller builds a Poller for one configured collector.
func NewPoller(coll config.Collector, sink Sink) *Poller {
	interval := coll.PollInterval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	return &Poller{
		coll: coll,
		client: &http.Client{
			Transport: &authRoundTripper{base: http.DefaultTransport, auth: coll.Auth},
			Timeout:   defaultPollTimeout,
		},
		parser:   Parser{EntityLabel: coll.EntityLabel},
		sink:     sink,
		interval: interval,
	}
}

// Run polls immediately, then on every interval tick until ctx is cancelled.
// A failed poll is logged and the next tick retries; it never stops the loop.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	res, err := p.Poll(ctx)
	if err != nil {
		slog.Warn("ingest: poll failed", "collector", p.coll.ID, "err", err)
		return
	}
	if res.SkippedMetrics > 0 {
		slog.Debug("ingest: skipped unusable series",
			"collector", p.coll.ID, "count", res.SkippedMetrics)
	}
}

// Poll performs one fetch-parse-append pass and returns what was extracted.
func (p *Poller) Poll(ctx context.Context) (ParseResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.coll.Endpoint, nil)
	if err != nil {
		return ParseResult{}, fmt.Errorf("ingest %q: build request: %w", p.coll.ID, err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := p.client.Do(req)
	if err != nil {
		return ParseResult{}, fmt.Errorf("ingest %q: http get: %w", p.coll.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ParseResult{}, fmt.Errorf("ingest %q: unexpected status %d", p.coll.ID, resp.StatusCode)
	}

	res, err := p.parser.Parse(resp.Body, time.Now().UTC())
	if err != nil {
		return ParseResult{}, fmt.Errorf("ingest %q: %w", p.coll.ID, err)
	}
	for _, s := range res.Samples {
		p.sink.Append(s)
	}
	observability.SamplesIngested.WithLabelValues(p.coll.ID).Add(float64(len(res.Samples)))
	return res, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.ClientAuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		header := t.auth.Header
		if header == "" {
			header = "x-api-key"
		}
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	}
	return t.base.RoundTrip(req)
}
