package telemetry

import (
	"context"
	"time"

	"github.com/lab1702/robo-arena/config"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

var nowFunc = func() time.Time { return time.Now().UTC() }

// Telemetry fans turn samples out to every configured sink
type Telemetry struct {
	metrics *Metrics
	influx  *InfluxSink
}

// New builds the telemetry pipeline. meter may be nil.
func New(cfg config.InfluxConfig, meter metric.Meter, log zerolog.Logger) (*Telemetry, error) {
	metrics, err := NewMetrics(meter)
	if err != nil {
		return nil, err
	}
	t := &Telemetry{metrics: metrics}
	if cfg.Enabled {
		t.influx = NewInfluxSink(cfg, log)
		log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("Writing turn metrics to InfluxDB")
	}
	return t, nil
}

// RecordTurn is called by the game loop after every turn
func (t *Telemetry) RecordTurn(ctx context.Context, s TurnSample) {
	if t == nil {
		return
	}
	t.metrics.ObserveTurn(ctx, s)
	if t.influx != nil {
		t.influx.WriteTurn(s)
	}
}

// Close flushes pending points
func (t *Telemetry) Close() {
	if t == nil || t.influx == nil {
		return
	}
	t.influx.Close()
}
