// Package audit publishes per-cycle decision records to Kafka for offline
// review and training-data alignment.
package audit

import (
	"context"
	"time"

	"PsiPulse/internal/domain/models"
	xkafka "PsiPulse/pkg/kafka"
)

// DecisionRecord is the wire shape of one audited cycle.
type DecisionRecord struct {
	Symbol       string    `json:"symbol"`
	At           time.Time `json:"at"`
	Action       string    `json:"action"`
	Confidence   float64   `json:"confidence"`
	Psi          float64   `json:"psi"`
	Reason       string    `json:"reason"`
	Price        float64   `json:"price"`
	PositionSide string    `json:"position_side,omitempty"`
	PositionSize float64   `json:"position_size,omitempty"`
	PyramidLevel int       `json:"pyramid_level,omitempty"`
	Halted       bool      `json:"halted"`
}

// KafkaSink publishes decision records to one topic, keyed by symbol so a
// single instrument's audit trail stays ordered within its partition.
type KafkaSink struct {
	producer *xkafka.Producer
	topic    string
}

// NewKafkaSink creates an audit sink over an existing producer.
func NewKafkaSink(producer *xkafka.Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

// Publish sends one decision record. Failures are the caller's to log;
// auditing never blocks trading.
func (s *KafkaSink) Publish(ctx context.Context, r DecisionRecord) error {
	return s.producer.Publish(ctx, s.topic, []byte(r.Symbol), r)
}

// Close closes the underlying producer.
func (s *KafkaSink) Close() error {
	return s.producer.Close()
}

// RecordFor builds a record from cycle outputs.
func RecordFor(symbol string, d models.Decision, price float64, pos *models.Position, halted bool) DecisionRecord {
	r := DecisionRecord{
		Symbol:     symbol,
		At:         d.Timestamp,
		Action:     string(d.Action),
		Confidence: d.Confidence,
		Psi:        d.PsiValue,
		Reason:     d.Reason,
		Price:      price,
		Halted:     halted,
	}
	if pos != nil {
		r.PositionSide = string(pos.Side)
		r.PositionSize = pos.Size
		r.PyramidLevel = pos.PyramidLevel
	}
	return r
}
