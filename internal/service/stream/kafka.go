package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
	xkafka "PsiPulse/pkg/kafka"
	"PsiPulse/pkg/logger"
)

// KafkaFeed implements a CandleFeed over a Kafka candle topic. Messages are
// JSON candles keyed by symbol; ordering relies on single-partition-per-key
// publishing upstream.
type KafkaFeed struct {
	consumer *xkafka.Consumer
	symbol   string
	log      *logger.Logger

	cancel    context.CancelFunc
	connected bool
}

// candleMsg is the wire shape of one closed candle on the topic.
type candleMsg struct {
	Symbol   string  `json:"symbol"`
	OpenTime int64   `json:"open_time"` // ms
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// NewKafkaFeed creates a candle feed consuming the given topic.
func NewKafkaFeed(brokers []string, topic, groupID, symbol string, log *logger.Logger) (*KafkaFeed, error) {
	consumer, err := xkafka.NewConsumer(
		xkafka.WithConsumerBrokers(brokers),
		xkafka.WithTopic(topic),
		xkafka.WithGroupID(groupID),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka feed: %w", err)
	}
	return &KafkaFeed{consumer: consumer, symbol: symbol, log: log}, nil
}

// Connect marks the feed ready; the underlying reader connects lazily.
func (f *KafkaFeed) Connect(context.Context) error {
	f.connected = true
	return nil
}

// Read consumes candle messages until ctx is cancelled. Candles for other
// symbols are skipped; malformed payloads are surfaced on the error channel
// and the offset still commits so one bad message cannot wedge the feed.
func (f *KafkaFeed) Read(ctx context.Context) (<-chan models.Candle, <-chan error) {
	candles := make(chan models.Candle, 256)
	errs := make(chan error, 1)

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	go func() {
		defer close(candles)
		defer close(errs)

		err := f.consumer.Consume(runCtx, func(ctx context.Context, _ []byte, value []byte) error {
			var m candleMsg
			if err := json.Unmarshal(value, &m); err != nil {
				f.log.Warn("malformed candle message skipped", logger.Error(err))
				return nil
			}
			if m.Symbol != "" && m.Symbol != f.symbol {
				return nil
			}
			c := models.Candle{
				OpenTime: time.UnixMilli(m.OpenTime).UTC(),
				Open:     m.Open,
				High:     m.High,
				Low:      m.Low,
				Close:    m.Close,
				Volume:   m.Volume,
			}
			select {
			case candles <- c:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errs <- fmt.Errorf("kafka feed: %w", err)
		}
	}()

	return candles, errs
}

// Close stops consumption and closes the reader.
func (f *KafkaFeed) Close() error {
	f.connected = false
	if f.cancel != nil {
		f.cancel()
	}
	return f.consumer.Close()
}

// IsConnected reports feed status.
func (f *KafkaFeed) IsConnected() bool { return f.connected }

var _ domrepo.CandleFeed = (*KafkaFeed)(nil)
