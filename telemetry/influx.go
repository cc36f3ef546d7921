package telemetry

import (
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/lab1702/robo-arena/config"
	"github.com/rs/zerolog"
)

// InfluxSink writes a point per turn to InfluxDB. Writes are batched and
// asynchronous; failures are only logged.
type InfluxSink struct {
	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	log    zerolog.Logger
	done   chan struct{}
}

// NewInfluxSink connects lazily; nothing is sent until the first flush
func NewInfluxSink(cfg config.InfluxConfig, log zerolog.Logger) *InfluxSink {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)
	s := &InfluxSink{
		client: client,
		writer: client.WriteAPI(cfg.Org, cfg.Bucket),
		log:    log,
		done:   make(chan struct{}),
	}

	errorsCh := s.writer.Errors()
	go func() {
		defer close(s.done)
		for err := range errorsCh {
			s.log.Warn().Err(err).Msg("InfluxDB write failed")
		}
	}()

	return s
}

// WriteTurn queues the point for one turn
func (s *InfluxSink) WriteTurn(t TurnSample) {
	p := influxdb2.NewPointWithMeasurement("turn").
		AddTag("game", t.GameID).
		AddTag("round", strconv.Itoa(t.Round)).
		AddField("turn", t.Turn).
		AddField("bots", t.Bots).
		AddField("bullets", t.Bullets).
		AddField("skipped", t.Skipped).
		AddField("duration_ms", float64(t.Duration.Microseconds())/1000).
		SetTime(nowFunc())
	s.writer.WritePoint(p)
}

// Flush sends everything queued so far
func (s *InfluxSink) Flush() {
	s.writer.Flush()
}

// Close flushes and releases the client
func (s *InfluxSink) Close() {
	s.client.Close()
	<-s.done
}
