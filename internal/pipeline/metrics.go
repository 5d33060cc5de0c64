package pipeline

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the dispatcher instruments.
type Metrics struct {
	Processed  metric.Int64Counter
	Faults     metric.Int64Counter
	Duplicates metric.Int64Counter
	Duration   metric.Float64Histogram
}

// NewMetrics creates the instruments from meter. A nil meter records nothing.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	m := &Metrics{}
	var err error

	m.Processed, err = meter.Int64Counter("taskflow.messages.processed",
		metric.WithDescription("Messages settled by the dispatcher, by operation and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.Faults, err = meter.Int64Counter("taskflow.messages.faults",
		metric.WithDescription("Failed applies, by operation and fault kind"),
	)
	if err != nil {
		return nil, err
	}

	m.Duplicates, err = meter.Int64Counter("taskflow.messages.duplicates",
		metric.WithDescription("Messages skipped because they were already applied"),
	)
	if err != nil {
		return nil, err
	}

	m.Duration, err = meter.Float64Histogram("taskflow.message.duration",
		metric.WithDescription("Message handling duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
