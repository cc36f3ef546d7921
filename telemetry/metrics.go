// Package telemetry exports per-turn game metrics through OpenTelemetry and,
// optionally, InfluxDB.
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/lab1702/robo-arena/telemetry"

// TurnSample describes one completed turn
type TurnSample struct {
	GameID   string
	Round    int
	Turn     int
	Bots     int
	Bullets  int
	Skipped  int
	Duration time.Duration
}

// Metrics holds the OTel instruments fed by the game loop
type Metrics struct {
	turns        metric.Int64Counter
	skipped      metric.Int64Counter
	turnDuration metric.Float64Histogram
	bullets      metric.Int64ObservableGauge

	lastBullets atomic.Int64
}

// NewMetrics creates the instruments on m. A nil meter uses the global provider.
func NewMetrics(m metric.Meter) (*Metrics, error) {
	if m == nil {
		m = otel.Meter(instrumentationName)
	}
	mt := &Metrics{}

	var err error
	mt.turns, err = m.Int64Counter(
		"roboarena.turns",
		metric.WithDescription("Total turns simulated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating turns counter: %w", err)
	}

	mt.skipped, err = m.Int64Counter(
		"roboarena.skipped_turns",
		metric.WithDescription("Turns a bot did not answer in time"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	mt.turnDuration, err = m.Float64Histogram(
		"roboarena.turn.duration",
		metric.WithDescription("Time spent computing a turn"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating turn duration histogram: %w", err)
	}

	mt.bullets, err = m.Int64ObservableGauge(
		"roboarena.bullets",
		metric.WithDescription("Bullets in flight after the last turn"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bullets gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(mt.bullets, mt.lastBullets.Load())
			return nil
		},
		mt.bullets,
	)
	if err != nil {
		return nil, fmt.Errorf("registering bullets callback: %w", err)
	}

	return mt, nil
}

// ObserveTurn records one turn
func (m *Metrics) ObserveTurn(ctx context.Context, s TurnSample) {
	attrs := metric.WithAttributes(attribute.String("game", s.GameID))
	m.turns.Add(ctx, 1, attrs)
	if s.Skipped > 0 {
		m.skipped.Add(ctx, int64(s.Skipped), attrs)
	}
	m.turnDuration.Record(ctx, float64(s.Duration)/float64(time.Millisecond), attrs)
	m.lastBullets.Store(int64(s.Bullets))
}

// LastBullets returns the bullet count of the last observed turn
func (m *Metrics) LastBullets() int64 {
	return m.lastBullets.Load()
}
