package ingest

import (
	"fmt"
	"io"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/kestrelhpc/kestrel/pkg/types"
)

// DefaultEntityLabel is the exposition label read as the monitored entity
// when the collector config does not name one.
const DefaultEntityLabel = "entity"

// Parser converts Prometheus text exposition into metric samples. The metric
// name becomes the sample source; the configured label becomes the entity.
type Parser struct {
	// EntityLabel is the label carrying the entity (filesystem path, node
	// hostname, queue name). Defaults to DefaultEntityLabel.
	EntityLabel string
}

// ParseResult holds the extracted samples plus counts of whatever could not
// be used, so degraded exposition is observable rather than silent.
type ParseResult struct {
	Samples []types.MetricSample

	// SkippedMetrics counts series dropped for a missing entity label or an
	// unsupported metric type (histograms and summaries are not samples).
	SkippedMetrics int
}

// Parse decodes one exposition payload. Samples without an explicit
// exposition timestamp are stamped with at.
//
// A partial parse (trailing garbage, format warnings) with at least one
// decoded family is treated as success; a fully unparseable payload is an
// error the caller records against the collector.
func (p Parser) Parse(r io.Reader, at time.Time) (ParseResult, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return ParseResult{}, fmt.Errorf("ingest: parse exposition: %w", err)
	}

	label := p.EntityLabel
	if label == "" {
		label = DefaultEntityLabel
	}

	var res ParseResult
	for name, mf := range mfs {
		for _, m := range mf.GetMetric() {
			value, ok := scalarValue(m)
			if !ok {
				res.SkippedMetrics++
				continue
			}
			entity := labelValue(m, label)
			if entity == "" {
				res.SkippedMetrics++
				continue
			}
			ts := at
			if ms := m.GetTimestampMs(); ms > 0 {
				ts = time.UnixMilli(ms).UTC()
			}
			res.Samples = append(res.Samples, types.MetricSample{
				Source:    name,
				Entity:    entity,
				Timestamp: ts,
				Value:     value,
			})
		}
	}
	return res, nil
}

// scalarValue extracts the single numeric value of a counter, gauge or
// untyped metric. Histograms and summaries have no scalar reading.
func scalarValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Counter != nil:
		return m.Counter.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	default:
		return 0, false
	}
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
