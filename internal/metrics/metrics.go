// Package metrics emits run-level measurements for dashboards. Emission is
// best-effort: a failed emit is logged and never affects the crawl outcome.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/atlasingest/document-crawler/pkg/logger"
)

// Datum is a single measurement.
type Datum struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Emitter publishes measurements under a namespace.
type Emitter interface {
	Emit(ctx context.Context, namespace string, data []Datum) error
}

// NATSEmitter publishes metric batches as JSON over core NATS. Subjects
// are derived from the namespace, so consumers can subscribe per team.
type NATSEmitter struct {
	conn *nats.Conn
	log  *logger.Logger
}

// NewNATSEmitter creates an emitter over an established connection.
func NewNATSEmitter(conn *nats.Conn, log *logger.Logger) *NATSEmitter {
	if log == nil {
		log = logger.Default()
	}
	return &NATSEmitter{
		conn: conn,
		log:  log.WithComponent("metrics"),
	}
}

// Emit publishes one batch to "metrics.<namespace>".
func (e *NATSEmitter) Emit(ctx context.Context, namespace string, data []Datum) error {
	if len(data) == 0 {
		return nil
	}

	now := time.Now().UTC()
	for i := range data {
		if data[i].Timestamp.IsZero() {
			data[i].Timestamp = now
		}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	subject := "metrics." + namespace
	if err := e.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish metrics to %s: %w", subject, err)
	}

	e.log.Debug("emitted metrics", "subject", subject, "count", len(data))
	return nil
}

// LogEmitter writes measurements to the structured log. Used when no
// metrics transport is configured.
type LogEmitter struct {
	log *logger.Logger
}

// NewLogEmitter creates a log-backed emitter.
func NewLogEmitter(log *logger.Logger) *LogEmitter {
	if log == nil {
		log = logger.Default()
	}
	return &LogEmitter{log: log.WithComponent("metrics")}
}

// Emit logs each datum at info level.
func (e *LogEmitter) Emit(ctx context.Context, namespace string, data []Datum) error {
	for _, d := range data {
		e.log.Info("metric",
			"namespace", namespace,
			"name", d.Name,
			"value", d.Value,
			"unit", d.Unit,
		)
	}
	return nil
}
